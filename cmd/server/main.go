// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/api"
	"github.com/tahcohcat/gocalm-web/internal/auth"
	"github.com/tahcohcat/gocalm-web/internal/credits"
	"github.com/tahcohcat/gocalm-web/internal/database"
	"github.com/tahcohcat/gocalm-web/internal/llm"
	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/meditation"
	"github.com/tahcohcat/gocalm-web/internal/services"
	"github.com/tahcohcat/gocalm-web/internal/storage"
	"github.com/tahcohcat/gocalm-web/internal/tts"
	"github.com/tahcohcat/gocalm-web/internal/websocket"
	"github.com/tahcohcat/gocalm-web/internal/worker"
)

// Jobs still marked processing this long after the pipeline deadline
// belonged to a process that died.
const interruptSlack = 5 * time.Minute

func main() {
	configFile := flag.String("config", "", "path to config file (defaults to ./config.yaml)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Error("Failed to load config")
		os.Exit(1)
	}
	logger.SetGlobalLevel(logger.ParseLevel(cfg.Logging.Level))

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Server stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Log) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize services
	ledger := credits.NewService(db, cfg.Credits.CostPerMeditation)
	userService := services.NewUserService(db, ledger, cfg.Credits.SignupBonus)
	jobService := services.NewJobService(db, ledger)
	meditationService := services.NewMeditationService(db)

	// Upstream clients
	model, err := llm.NewLLMClient(cfg)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	synth, err := tts.NewSynthesizer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("tts client: %w", err)
	}
	log.WithField("llm", cfg.LLM.Provider).WithField("tts", synth.Name()).Info("Upstream clients ready")

	pipeline, err := meditation.New(cfg, model, synth)
	if err != nil {
		return err
	}
	if err := pipeline.Preload(); err != nil {
		// Nothing can be produced without the background track.
		return err
	}

	store, err := storage.New(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(cfg.Server.AllowedOrigins)
	go hub.Run()

	timeout := time.Duration(cfg.Pipeline.TimeoutSeconds) * time.Second
	if _, err := jobService.MarkInterrupted(timeout + interruptSlack); err != nil {
		log.WithError(err).Warn("Could not recover interrupted jobs")
	}

	pool := worker.NewPool(jobService, meditationService, store, pipeline, hub, worker.Options{
		Workers:      cfg.Jobs.Workers,
		PollInterval: time.Duration(cfg.Jobs.PollIntervalMs) * time.Millisecond,
		ArtifactTTL:  time.Duration(cfg.Storage.TTLHours) * time.Hour,
	})
	if cfg.Jobs.Inline {
		pool.Start(ctx)
	} else {
		log.Info("Inline workers disabled; run cmd/worker to process jobs")
	}

	authManager := auth.NewManager(cfg.Server.SessionSecret, userService, cfg.Server.TemplatesDir)

	r := mux.NewRouter()

	// Public routes (no authentication required)
	publicRouter := r.PathPrefix("/").Subrouter()
	publicRouter.HandleFunc("/login", authManager.LoginHandler).Methods("GET", "POST")
	publicRouter.HandleFunc("/register", authManager.RegisterHandler).Methods("GET", "POST")
	publicRouter.HandleFunc("/logout", authManager.LogoutHandler).Methods("POST", "GET")
	publicRouter.HandleFunc("/healthz", api.NewHealthHandler(db, pool, model).Health).Methods("GET")
	publicRouter.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir("./web/static/"))))

	// Authenticated routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(authManager.AuthMiddleware)

	apiRouter := authRouter.PathPrefix("/api/v1").Subrouter()
	handler := api.NewMeditationHandler(jobService, meditationService, userService, ledger, store, pool)
	api.RegisterRoutes(apiRouter, authRouter, handler)
	api.RegisterTTSRoutes(apiRouter, synth)

	authRouter.HandleFunc("/ws", hub.Handler(authManager.GetUserIDFromSession))

	// Serve the main page
	authRouter.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(cfg.Server.TemplatesDir, "index.html"))
	}).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("🧘 GoCalm Web Server starting on port " + cfg.Server.Port)
		log.Info("📍 Open http://localhost:" + cfg.Server.Port + " in your browser")
		log.Info("🗄️ Database: " + cfg.Database.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
	}
	pool.Wait()
	return nil
}
