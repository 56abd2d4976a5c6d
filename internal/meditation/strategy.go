package meditation

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tahcohcat/gocalm-web/internal/audio"
	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/script"
	"github.com/tahcohcat/gocalm-web/internal/tts"
)

// Strategy turns spoken segments into clips. The returned slice is indexed
// like segments: pauses and skipped segments are nil. skipped lists the
// indexes of spoken segments that produced no audio.
type Strategy interface {
	Synthesize(ctx context.Context, segments []script.Segment) (clips []*audio.Clip, skipped []int, err error)
	Name() string
}

// PerSegment makes one synthesis call per spoken segment, up to concurrency
// at a time.
type PerSegment struct {
	synth       tts.Synthesizer
	rate        int
	concurrency int
	logger      *logger.Log
}

func NewPerSegment(synth tts.Synthesizer, rate, concurrency int) *PerSegment {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PerSegment{synth: synth, rate: rate, concurrency: concurrency, logger: logger.New()}
}

func (p *PerSegment) Name() string { return "segment" }

func (p *PerSegment) Synthesize(ctx context.Context, segments []script.Segment) ([]*audio.Clip, []int, error) {
	clips := make([]*audio.Clip, len(segments))
	failed := make([]bool, len(segments))

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, seg := range segments {
		if seg.Kind != script.Spoken {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			clip, err := p.synthesizeOne(ctx, seg.Text)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.WithError(err).WithField("segment", seg.Index).Warn("Segment synthesis failed, skipping")
				failed[i] = true
				return nil
			}
			clips[i] = clip
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var skipped []int
	voiced := 0
	for i, seg := range segments {
		if seg.Kind != script.Spoken {
			continue
		}
		if failed[i] || clips[i] == nil {
			skipped = append(skipped, seg.Index)
			continue
		}
		voiced++
	}
	if voiced == 0 {
		return nil, skipped, fail(ErrNoAudio, fmt.Errorf("all %d spoken segments failed", len(skipped)))
	}
	return clips, skipped, nil
}

func (p *PerSegment) synthesizeOne(ctx context.Context, text string) (*audio.Clip, error) {
	out, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.synth.Name(), err)
	}
	clip, err := audio.Decode(out.Data, p.rate)
	if err != nil {
		return nil, fmt.Errorf("decoding %s audio: %w", out.ContentType, err)
	}
	if clip.Len() == 0 {
		return nil, fmt.Errorf("%s returned empty audio", p.synth.Name())
	}
	return clip, nil
}

// WholeScript synthesizes all spoken text in one call and cuts the result
// into per-segment clips in proportion to each segment's character count.
// The cut points assume an even speaking rate, so they can land a few words
// early or late.
type WholeScript struct {
	synth tts.Synthesizer
	rate  int
}

func NewWholeScript(synth tts.Synthesizer, rate int) *WholeScript {
	return &WholeScript{synth: synth, rate: rate}
}

func (w *WholeScript) Name() string { return "whole" }

func (w *WholeScript) Synthesize(ctx context.Context, segments []script.Segment) ([]*audio.Clip, []int, error) {
	var (
		spoken []int
		total  int
	)
	for i, seg := range segments {
		if seg.Kind == script.Spoken {
			spoken = append(spoken, i)
			total += len(seg.Text)
		}
	}
	if len(spoken) == 0 || total == 0 {
		return nil, nil, fail(ErrNoAudio, fmt.Errorf("script has no spoken text"))
	}

	out, err := w.synth.Synthesize(ctx, script.SpokenText(segments))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, indexes(segments, spoken), fail(ErrNoAudio, fmt.Errorf("%s: %w", w.synth.Name(), err))
	}
	full, err := audio.Decode(out.Data, w.rate)
	if err != nil || full.Len() == 0 {
		if err == nil {
			err = fmt.Errorf("empty audio")
		}
		return nil, indexes(segments, spoken), fail(ErrNoAudio, err)
	}

	clips := make([]*audio.Clip, len(segments))
	start, chars := 0, 0
	for n, i := range spoken {
		chars += len(segments[i].Text)
		end := full.Len() * chars / total
		if n == len(spoken)-1 {
			end = full.Len()
		}
		clips[i] = full.Slice(start, end)
		start = end
	}
	return clips, nil, nil
}

func indexes(segments []script.Segment, positions []int) []int {
	out := make([]int, len(positions))
	for n, i := range positions {
		out[n] = segments[i].Index
	}
	return out
}

// NewStrategy picks a strategy by its config name.
func NewStrategy(name string, synth tts.Synthesizer, rate, concurrency int) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "segment":
		return NewPerSegment(synth, rate, concurrency), nil
	case "whole":
		return NewWholeScript(synth, rate), nil
	default:
		return nil, fmt.Errorf("unknown synthesis strategy %q", name)
	}
}
