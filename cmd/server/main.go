package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/db"
	routes "github.com/sujalbistaa/lettre/internal/http"
	"github.com/sujalbistaa/lettre/internal/invite"
	"github.com/sujalbistaa/lettre/internal/letter"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
	"github.com/sujalbistaa/lettre/internal/scheduler"
	"github.com/sujalbistaa/lettre/internal/social"
	"github.com/sujalbistaa/lettre/internal/thought"
	"github.com/sujalbistaa/lettre/internal/ws"
)

func main() {
	// Running without a .env file is fine in production where the
	// environment is set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	log.Println("Running database migrations...")
	if err := database.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations complete.")

	hub := ws.NewHub()
	go hub.Run()

	notifier := notify.NewService(database, hub)
	env := &routes.Env{
		Letters:  letter.NewService(database, cfg, notifier),
		Social:   social.NewService(database, cfg, notifier),
		Thoughts: thought.NewService(database, cfg, notifier),
		Invites:  invite.NewService(database, cfg, notifier),
		Notify:   notifier,
	}

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	sched := scheduler.New(env.Letters, cfg.SweepInterval)
	go sched.Run(sweepCtx)

	// SetupRoutes installs Logger and Recovery itself.
	router := gin.New()
	routes.SetupRoutes(router, env, hub, cfg.CORSOrigin)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")
	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
