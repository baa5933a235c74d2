package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/securetrack/api/internal/auth"
	"github.com/securetrack/api/internal/config"
	"github.com/securetrack/api/internal/database"
	"github.com/securetrack/api/internal/handler"
	"github.com/securetrack/api/internal/middleware"
	"github.com/securetrack/api/internal/queue"
	"github.com/securetrack/api/internal/repository"
	"github.com/securetrack/api/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := database.EnsureSchema(ctx, db); err != nil {
		cancel()
		log.Fatalf("schema: %v", err)
	}
	cancel()

	roles := repository.NewRoleRepo(db)
	users := repository.NewUserRepo(db, roles)
	tokens := repository.NewTokenRepo(db)
	svc := auth.NewService(cfg, users, roles, tokens)

	// Redis is optional: without it the limiter is a no-op.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Audit trail consumer; reconnects on its own.
	go func() {
		if err := queue.StartAuthEventConsumer(); err != nil {
			log.Printf("auth-consumer stopped: %v", err)
		}
	}()

	// Expired sessions are pruned in the background; validity never
	// depends on this, it only keeps the table small.
	go pruneLoop(tokens)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, cfg, handler.NewAuthHandler(svc), handler.NewUserHandler(cfg, users), users, roles, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

func pruneLoop(tokens *repository.TokenRepo) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for range t.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := tokens.PruneExpired(ctx, time.Now().UTC())
		cancel()
		if err != nil {
			log.Printf("prune refresh tokens: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("pruned %d expired refresh tokens", n)
		}
	}
}
