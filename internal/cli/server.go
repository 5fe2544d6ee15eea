package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"processmaster-service/internal/config"
	"processmaster-service/internal/game"
	"processmaster-service/internal/infra/memory"
	inframongo "processmaster-service/internal/infra/mongo"
	infrapg "processmaster-service/internal/infra/postgres"
	infraredis "processmaster-service/internal/infra/redis"
	"processmaster-service/internal/levels"
	transport "processmaster-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var mongoDB *mongodriver.Database
	if cfg.Mongo.URI != "" {
		client, err := mongodriver.Connect(ctx, mongooptions.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Disconnect(context.Background())
		}()
		dbName := cfg.Mongo.Database
		if dbName == "" {
			dbName = "processmaster"
		}
		mongoDB = client.Database(dbName)
	}

	catalog := memory.NewStaticLevelLoader(levels.Builtin())

	var loader memory.LevelLoader = catalog
	var library game.LevelWriter = catalog
	if pool != nil {
		store := infrapg.NewLevelStore(pool, catalog)
		loader = store
		library = store
	}

	levelTTL := config.Duration(cfg.Game.LevelTTL, 10*time.Minute)
	var levelRepo game.LevelRepository
	if redisClient != nil {
		levelRepo = infraredis.NewLevelRepository(redisClient, loader, levelTTL)
	} else {
		levelRepo = memory.NewLevelRepository(loader, levelTTL)
	}

	var guard game.SubmissionGuard
	if redisClient != nil {
		guard = infraredis.NewSubmissionGuard(redisClient, redisTTL)
	} else {
		guard = memory.NewSubmissionGuard()
	}

	stores := game.Stores{Library: library}
	if mongoDB != nil {
		stores.Sessions = inframongo.NewSessionStore(mongoDB)
		stores.Players = inframongo.NewPlayerStore(mongoDB)
		stores.Scores = inframongo.NewScoreStore(mongoDB)
	} else {
		stores.Sessions = memory.NewSessionStore()
		stores.Players = memory.NewPlayerStore()
		stores.Scores = memory.NewScoreStore()
	}

	settle := config.Duration(cfg.Game.SettleDelay, 2*time.Second)
	service := game.NewService(stores, levelRepo, guard, settle)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting processmaster service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
