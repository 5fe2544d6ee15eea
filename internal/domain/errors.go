package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for an ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrLevelNotFound indicates the level could not be loaded.
	ErrLevelNotFound = errors.New("level not found")
	// ErrEmptyPlaylist rejects opening a lobby with no rounds.
	ErrEmptyPlaylist = errors.New("playlist is empty")
	// ErrInvalidTransition rejects a phase command the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid phase transition")
	// ErrRoundClosed rejects submissions outside the active round.
	ErrRoundClosed = errors.New("round is not accepting submissions")
	// ErrAlreadySubmitted is returned on repeat submissions for the same round.
	ErrAlreadySubmitted = errors.New("already submitted for this round")
	// ErrEmptyNickname rejects joining without a display name.
	ErrEmptyNickname = errors.New("nickname must not be empty")
	// ErrNicknameTooLong rejects nicknames over the display limit.
	ErrNicknameTooLong = errors.New("nickname too long")
	// ErrNicknameTaken enforces nickname uniqueness within a session.
	ErrNicknameTaken = errors.New("nickname already taken in this session")
	// ErrEmptyTitle rejects authored levels without a title.
	ErrEmptyTitle = errors.New("level title must not be empty")
	// ErrLevelLibraryReadOnly is returned when no writable level store is configured.
	ErrLevelLibraryReadOnly = errors.New("level library is read-only")
	// ErrTooFewSteps rejects authored levels with fewer than two steps.
	ErrTooFewSteps = errors.New("level needs at least two steps")
	// ErrDuplicateStepID rejects authored levels with repeated step IDs.
	ErrDuplicateStepID = errors.New("duplicate step id")
	// ErrDuplicateStepText rejects steps whose text collides case-insensitively.
	ErrDuplicateStepText = errors.New("duplicate step text")
)
