package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quizduel/internal/cache"
	"quizduel/internal/config"
	"quizduel/internal/repository"
	"quizduel/internal/service"
	"quizduel/internal/store"
	"quizduel/internal/transport/rest"
	"quizduel/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	redisAddr := strings.TrimPrefix(cfg.RedisAddr, "redis://")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Shared store client over MongoDB (change streams need a replica set)
	storeClient := store.NewMongoClient(db)

	// Initialize repositories
	matchRepo := repository.NewMatchRepo(storeClient)
	questionRepo := repository.NewQuestionRepo(storeClient)

	// Initialize caches
	poolCache := cache.NewPoolCache(rdb)

	// Initialize services
	authSvc := service.NewAuthService()
	sessions := service.NewSessions(matchRepo, questionRepo, poolCache, wsHub, service.SystemClock{})

	// A closed socket abandons the search; the record must not stay waiting.
	wsHub.SetDisconnectHandler(func(participantID string) {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		sessions.Drop(dropCtx, participantID)
	})

	// Create router with container
	container := &rest.Container{
		AuthService: authSvc,
		Sessions:    sessions,
		WSHub:       wsHub,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/token")
		log.Println("  POST /v1/matches/search")
		log.Println("  POST /v1/matches/answer")
		log.Println("  POST /v1/matches/cancel")
		log.Println("  GET  /v1/matches/current")
		log.Println("  WS   /v1/ws/players/{id}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
