// Package worker drains the meditation queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/meditation"
	"github.com/tahcohcat/gocalm-web/internal/models"
	"github.com/tahcohcat/gocalm-web/internal/services"
	"github.com/tahcohcat/gocalm-web/internal/storage"
)

// Runner is the pipeline as seen by the pool.
type Runner interface {
	Run(ctx context.Context, req meditation.Request) (*meditation.Result, error)
}

// Notifier hears about every job state change. audioURL is set once the
// job is done.
type Notifier interface {
	JobUpdated(job *models.Job, audioURL string)
}

type Options struct {
	Workers      int
	PollInterval time.Duration
	ArtifactTTL  time.Duration
	Name         string
}

type Pool struct {
	jobs        *services.JobService
	meditations *services.MeditationService
	store       storage.Store
	pipeline    Runner
	notifier    Notifier
	opts        Options
	logger      *logger.Log

	running   atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64
	wg        sync.WaitGroup
}

func NewPool(jobs *services.JobService, meditations *services.MeditationService, store storage.Store, pipeline Runner, notifier Notifier, opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Name == "" {
		host, _ := os.Hostname()
		opts.Name = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &Pool{
		jobs:        jobs,
		meditations: meditations,
		store:       store,
		pipeline:    pipeline,
		notifier:    notifier,
		opts:        opts,
		logger:      logger.New().WithField("pool", opts.Name),
	}
}

// MediaURL is where a finished meditation can be downloaded.
func MediaURL(meditationID string) string {
	return "/media/" + meditationID
}

// Start launches the workers and returns immediately. They stop when ctx
// is cancelled; Wait blocks until they have.
func (p *Pool) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info(fmt.Sprintf("Starting %d meditation workers", p.opts.Workers))

	for i := 0; i < p.opts.Workers; i++ {
		name := fmt.Sprintf("%s/%d", p.opts.Name, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx, name)
		}()
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
	p.running.Store(false)
}

func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Stats returns how many jobs finished and how many of those failed.
func (p *Pool) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}

func (p *Pool) loop(ctx context.Context, name string) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything available before sleeping again.
		for ctx.Err() == nil {
			job, err := p.jobs.ClaimNext(name)
			if err != nil {
				p.logger.WithError(err).Error("Failed to poll job queue")
				break
			}
			if job == nil {
				break
			}
			p.Process(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Process runs one claimed job to completion: pipeline, artifact store,
// metadata row, job status. On any failure the job is failed (and refunded)
// and nothing stays in the store.
func (p *Pool) Process(ctx context.Context, job *models.Job) (*models.Meditation, []byte, error) {
	log := p.logger.WithField("job_id", job.ID)
	p.notify(job, "")

	res, err := p.pipeline.Run(ctx, meditation.Request{Situation: job.Situation})
	if err != nil {
		return nil, nil, p.fail(job, meditation.Message(err), err)
	}

	key := job.ID + "." + res.Extension
	if err := p.store.Put(ctx, key, res.Data, p.opts.ArtifactTTL); err != nil {
		return nil, nil, p.fail(job, "could not save meditation", err)
	}

	m := &models.Meditation{
		ID:              uuid.NewString(),
		JobID:           job.ID,
		UserID:          job.UserID,
		Situation:       job.Situation,
		StorageKey:      key,
		ContentType:     res.ContentType,
		DurationMs:      res.Duration.Milliseconds(),
		SizeBytes:       int64(len(res.Data)),
		Fallback:        res.Script.Fallback,
		SkippedSegments: len(res.SkippedSegments),
	}
	if err := p.meditations.Create(m); err != nil {
		p.cleanup(key)
		return nil, nil, p.fail(job, "could not save meditation", err)
	}

	if err := p.jobs.Complete(job.ID, m.ID); err != nil {
		p.cleanup(key)
		return nil, nil, p.fail(job, "could not save meditation", err)
	}

	p.processed.Add(1)
	log.Info(fmt.Sprintf("Meditation ready: %s, %d bytes in %s", res.Duration.Round(time.Second), len(res.Data), res.Elapsed.Round(time.Millisecond)))

	done, err := p.jobs.Get(job.ID)
	if err != nil {
		done = job
		done.Status = models.JobDone
	}
	p.notify(done, MediaURL(m.ID))
	return m, res.Data, nil
}

func (p *Pool) fail(job *models.Job, message string, cause error) error {
	p.processed.Add(1)
	p.failed.Add(1)
	p.logger.WithField("job_id", job.ID).WithError(cause).Error("Meditation job failed")

	if err := p.jobs.Fail(job.ID, message); err != nil {
		p.logger.WithField("job_id", job.ID).WithError(err).Warn("Could not mark job failed")
	}

	failed, err := p.jobs.Get(job.ID)
	if err != nil {
		failed = job
		failed.Status = models.JobFailed
		failed.Error = message
	}
	p.notify(failed, "")
	return cause
}

func (p *Pool) cleanup(key string) {
	// A fresh context: the run's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		p.logger.WithError(err).Warn("Failed to remove orphaned artifact " + key)
	}
}

func (p *Pool) notify(job *models.Job, audioURL string) {
	if p.notifier != nil {
		p.notifier.JobUpdated(job, audioURL)
	}
}
