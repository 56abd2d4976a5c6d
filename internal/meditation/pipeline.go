// Package meditation turns a situation into a finished meditation track:
// script, split, synthesize, lay out with silences, mix with background
// music and encode. Pipeline.Run is the single entry point used by both the
// synchronous HTTP handler and the background workers.
package meditation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/audio"
	"github.com/tahcohcat/gocalm-web/internal/llm"
	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/script"
	"github.com/tahcohcat/gocalm-web/internal/tts"
)

// Request describes one run. When Script is set it is used as-is (after
// sanitization) and the language model is not called.
type Request struct {
	Situation string
	Script    string
}

type Result struct {
	Output
	Script          *script.Script
	Timeline        Timeline
	Segments        int
	SkippedSegments []int
	Elapsed         time.Duration
}

type Pipeline struct {
	generator *script.Generator
	splitter  *script.Splitter
	strategy  Strategy
	assembler *Assembler
	timeout   time.Duration
	logger    *logger.Log
}

func NewPipeline(generator *script.Generator, splitter *script.Splitter, strategy Strategy, assembler *Assembler, timeout time.Duration) *Pipeline {
	return &Pipeline{
		generator: generator,
		splitter:  splitter,
		strategy:  strategy,
		assembler: assembler,
		timeout:   timeout,
		logger:    logger.New(),
	}
}

// New wires a pipeline from configuration and the two upstream clients.
func New(cfg *config.Config, model llm.LLM, synth tts.Synthesizer) (*Pipeline, error) {
	strategy, err := NewStrategy(cfg.Pipeline.Strategy, synth, cfg.Audio.SampleRate, cfg.Pipeline.Concurrency)
	if err != nil {
		return nil, err
	}

	encoder, ok := audio.NewEncoder(cfg.Audio.Format, cfg.Audio.FFmpegPath, cfg.Audio.Bitrate)
	if !ok {
		logger.New().Warn(fmt.Sprintf("ffmpeg not found at %q, meditations will be encoded as WAV", cfg.Audio.FFmpegPath))
	}

	return NewPipeline(
		script.NewGenerator(model, cfg.Script),
		script.NewSplitter(cfg.Script.Marker),
		strategy,
		NewAssembler(cfg.Audio, encoder),
		time.Duration(cfg.Pipeline.TimeoutSeconds)*time.Second,
	), nil
}

// Preload loads shared assets so a bad deploy fails at startup rather than
// on the first request.
func (p *Pipeline) Preload() error {
	_, err := p.assembler.Background()
	return err
}

// Run produces one meditation. It never publishes anything; on error no
// output is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.run(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fail(ErrTimeout, fmt.Errorf("after %s: %w", time.Since(start).Round(time.Second), err))
		}
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (*Result, error) {
	if _, err := p.assembler.Background(); err != nil {
		return nil, err
	}

	var s *script.Script
	if strings.TrimSpace(req.Script) != "" {
		s = &script.Script{Text: script.Sanitize(req.Script, p.splitter.Marker())}
	} else {
		var err error
		s, err = p.generator.Generate(ctx, req.Situation)
		if err != nil {
			return nil, err
		}
	}

	segments := p.splitter.Split(s.Text)
	if len(segments) == 0 {
		return nil, fail(ErrNoAudio, fmt.Errorf("script has no spoken text"))
	}

	log := p.logger.WithField("strategy", p.strategy.Name())
	log.Info(fmt.Sprintf("Synthesizing %d segments (%d pauses, fallback=%v)", len(segments), script.CountPauses(segments), s.Fallback))

	clips, skipped, err := p.strategy.Synthesize(ctx, segments)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		log.Warn(fmt.Sprintf("Skipped %d of %d spoken segments", len(skipped), len(segments)-script.CountPauses(segments)))
	}

	tl := BuildTimeline(segments, clips, p.assembler.SilenceDuration(), p.assembler.SampleRate())
	out, err := p.assembler.Assemble(ctx, tl)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Output:          *out,
		Script:          s,
		Timeline:        tl,
		Segments:        len(segments),
		SkippedSegments: skipped,
	}, nil
}
