package http

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"processmaster-service/internal/domain"
	"processmaster-service/internal/game"
)

type WSHandler struct {
	service  *game.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *game.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type openLobbyPayload struct {
	Playlist []game.PlaylistRequest `json:"playlist"`
}

type createLevelPayload struct {
	Title string        `json:"title"`
	Steps []domain.Step `json:"steps"`
}

type submitPayload struct {
	RoundIndex int      `json:"roundIndex"`
	Order      []string `json:"order"`
	Forced     bool     `json:"forced"`
}

type submitResult struct {
	RoundIndex   int `json:"roundIndex"`
	Score        int `json:"score"`
	CorrectCount int `json:"correctCount"`
	TimeTaken    int `json:"timeTaken"`
}

type roundResultsPayload struct {
	Round int `json:"round"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// game use cases. Students arrive via join URLs carrying session,
// nickname, and avatar query parameters; the instructor connects with
// role=teacher and drives the session with typed commands.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = "player"
	}
	sessionID := r.URL.Query().Get("session")
	nickname := r.URL.Query().Get("nickname")
	avatar := r.URL.Query().Get("avatar")

	if role == "player" && (sessionID == "" || nickname == "") {
		http.Error(w, "missing session or nickname", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var forwarders sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	var cancelWatch func()
	watch := func(id string) error {
		updates, cancel, err := h.service.Watch(r.Context(), id)
		if err != nil {
			return err
		}
		if cancelWatch != nil {
			cancelWatch()
		}
		cancelWatch = cancel
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			for {
				select {
				case snap, ok := <-updates:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: "session", Payload: snap}:
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
		return nil
	}

	if role == "player" {
		player, err := h.service.Join(r.Context(), sessionID, nickname, avatar)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			close(send)
			<-writerDone
			return
		}
		nickname = player.Nickname
		send <- outboundMessage[any]{Type: "joined", Payload: player}
		if err := watch(sessionID); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		}
	} else if sessionID != "" {
		// Instructor reconnecting to a running session.
		if err := watch(sessionID); err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			close(send)
			<-writerDone
			return
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			if role != "player" {
				send <- errMsg("submit requires the player role")
				continue
			}
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg("invalid submit payload")
				continue
			}
			record, err := h.service.SubmitOrder(r.Context(), sessionID, nickname, payload.RoundIndex, payload.Order, payload.Forced)
			if err != nil {
				send <- errMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "submitResult", Payload: submitResult{
				RoundIndex:   record.RoundIndex,
				Score:        record.Score,
				CorrectCount: record.CorrectCount,
				TimeTaken:    record.TimeTaken,
			}}

		case "openLobby":
			if !h.requireTeacher(role, send) {
				continue
			}
			var payload openLobbyPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg("invalid openLobby payload")
				continue
			}
			session, err := h.service.OpenLobby(r.Context(), payload.Playlist)
			if err != nil {
				send <- errMsg(err.Error())
				continue
			}
			sessionID = session.ID
			if err := watch(sessionID); err != nil {
				send <- errMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "lobbyOpened", Payload: session}

		case "startRound":
			h.command(role, send, func() (domain.Session, error) {
				return h.service.StartRound(r.Context(), sessionID)
			})
		case "stopRound":
			h.command(role, send, func() (domain.Session, error) {
				return h.service.StopRound(r.Context(), sessionID)
			})
		case "advanceRound":
			h.command(role, send, func() (domain.Session, error) {
				return h.service.AdvanceRound(r.Context(), sessionID)
			})
		case "terminate":
			h.command(role, send, func() (domain.Session, error) {
				return h.service.Terminate(r.Context(), sessionID)
			})

		case "showLeaderboard":
			if !h.requireTeacher(role, send) {
				continue
			}
			_, standings, err := h.service.ShowLeaderboard(r.Context(), sessionID)
			if err != nil {
				send <- errMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "standings", Payload: standings}

		case "standings":
			standings, err := h.service.Standings(r.Context(), sessionID)
			if err != nil {
				send <- errMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "standings", Payload: standings}

		case "roundResults":
			var payload roundResultsPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg("invalid roundResults payload")
				continue
			}
			results, err := h.service.RoundResults(r.Context(), sessionID, payload.Round)
			if err != nil {
				send <- errMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "roundResults", Payload: results}

		case "createLevel":
			if !h.requireTeacher(role, send) {
				continue
			}
			var payload createLevelPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMsg("invalid createLevel payload")
				continue
			}
			level, err := h.service.CreateLevel(r.Context(), payload.Title, payload.Steps)
			if err != nil {
				send <- errMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "levelCreated", Payload: level}

		default:
			send <- errMsg("unsupported message type")
		}
	}

	if cancelWatch != nil {
		cancelWatch()
	}
	close(closeSignals)
	forwarders.Wait()
	close(send)
	<-writerDone
}

// command runs a teacher phase command; the resulting session snapshot
// reaches every watcher through the broadcast, so success needs no direct
// reply.
func (h *WSHandler) command(role string, send chan outboundMessage[any], fn func() (domain.Session, error)) {
	if !h.requireTeacher(role, send) {
		return
	}
	if _, err := fn(); err != nil {
		send <- errMsg(err.Error())
	}
}

func (h *WSHandler) requireTeacher(role string, send chan outboundMessage[any]) bool {
	if role != "teacher" {
		send <- errMsg("command requires the teacher role")
		return false
	}
	return true
}

func errMsg(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
