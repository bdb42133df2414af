package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"competition-service/internal/app"
	"competition-service/internal/config"
	"competition-service/internal/domain"
	"competition-service/internal/infra/memory"
	pgstore "competition-service/internal/infra/postgres"
	redisstore "competition-service/internal/infra/redis"
	transport "competition-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the competition server",
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.TestLoader = memory.NewStaticTestLoader(sampleTests())
	if pool != nil {
		loader = pgstore.NewTestLoader(pool)
	}

	testTTL := config.TTLDuration(cfg.Tests.TTL, 10*time.Minute)
	var tests app.TestRepository
	if redisClient != nil {
		tests = redisstore.NewTestRepository(redisClient, loader, testTTL)
	} else {
		tests = memory.NewTestRepository(loader, testTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	var results app.ResultsWriter
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()
		results = pgstore.NewResultsWriter(bunDB)
	}

	service := app.NewCompetitionService(sessions, tests, results, app.Options{
		TeamCapacity:  cfg.Competition.TeamCapacity,
		ChatHistory:   cfg.Competition.ChatHistory,
		PartialCredit: cfg.Scoring.PartialCredit,
		ResultRetries: cfg.Results.MaxRetries,
		ResultBackoff: config.TTLDuration(cfg.Results.RetryBackoff, 2*time.Second),
	})

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Printf("auth.jwtSecret not set, using insecure development secret")
	}
	tokens := transport.NewTokenIssuer(secret)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	transport.NewRESTHandler(service, tokens).Register(router)
	router.GET("/ws", transport.NewWSHandler(service, tokens).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting competition service on :%s", finalPort)
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

// sampleTests provides a minimal test set for running without Postgres.
func sampleTests() map[string]domain.Test {
	return map[string]domain.Test{
		"test-1": {
			ID:    "test-1",
			Title: "General knowledge",
			Questions: []domain.Question{
				{
					ID:    "q1",
					Title: "What is 2 + 2?",
					Type:  domain.QuestionMultipleChoice,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					CorrectAnswers: []string{"o2"},
					Weight:         1,
				},
				{
					ID:             "q2",
					Title:          "The capital of France is Paris.",
					Type:           domain.QuestionTrueFalse,
					Options:        []domain.Option{{ID: "true", Text: "True"}, {ID: "false", Text: "False"}},
					CorrectAnswers: []string{"true"},
					Weight:         1,
				},
				{
					ID:             "q3",
					Title:          "Name the planet closest to the sun.",
					Type:           domain.QuestionShortAnswer,
					CorrectAnswers: []string{"Mercury"},
					Weight:         2,
				},
			},
		},
	}
}
