// cmd/worker/main.go runs meditation workers without the web server. Any
// number of these can share the server's database file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/credits"
	"github.com/tahcohcat/gocalm-web/internal/database"
	"github.com/tahcohcat/gocalm-web/internal/llm"
	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/meditation"
	"github.com/tahcohcat/gocalm-web/internal/services"
	"github.com/tahcohcat/gocalm-web/internal/storage"
	"github.com/tahcohcat/gocalm-web/internal/tts"
	"github.com/tahcohcat/gocalm-web/internal/worker"
)

type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

func main() {
	configFile := flag.String("config", "", "path to config file (defaults to ./config.yaml)")
	workers := flag.Int("workers", 0, "number of workers (overrides jobs.workers)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Error("Failed to load config")
		os.Exit(1)
	}
	logger.SetGlobalLevel(logger.ParseLevel(cfg.Logging.Level))
	if *workers > 0 {
		cfg.Jobs.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	ledger := credits.NewService(db, cfg.Credits.CostPerMeditation)
	jobService := services.NewJobService(db, ledger)
	meditationService := services.NewMeditationService(db)

	model, err := llm.NewLLMClient(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create LLM client")
		os.Exit(1)
	}
	synth, err := tts.NewSynthesizer(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create TTS client")
		os.Exit(1)
	}

	pipeline, err := meditation.New(cfg, model, synth)
	if err != nil {
		log.WithError(err).Error("Failed to build pipeline")
		os.Exit(1)
	}
	if err := pipeline.Preload(); err != nil {
		log.WithError(err).Error("Failed to load background track")
		os.Exit(1)
	}

	store, err := storage.New(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		log.WithError(err).Error("Failed to open artifact store")
		os.Exit(1)
	}

	ttl := time.Duration(cfg.Storage.TTLHours) * time.Hour
	pool := worker.NewPool(jobService, meditationService, store, pipeline, nil, worker.Options{
		Workers:      cfg.Jobs.Workers,
		PollInterval: time.Duration(cfg.Jobs.PollIntervalMs) * time.Millisecond,
		ArtifactTTL:  ttl,
	})
	pool.Start(ctx)

	if s, ok := store.(sweeper); ok && ttl > 0 {
		go sweep(ctx, s, log)
	}

	<-ctx.Done()
	log.Info("Waiting for running jobs to stop")
	pool.Wait()

	processed, failed := pool.Stats()
	log.Info(fmt.Sprintf("Worker stopped: %d jobs processed, %d failed", processed, failed))
}

func sweep(ctx context.Context, s sweeper, log *logger.Log) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := s.Sweep(ctx)
		if err != nil {
			log.WithError(err).Warn("Artifact sweep failed")
		} else if n > 0 {
			log.Info(fmt.Sprintf("Removed %d expired meditations", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
