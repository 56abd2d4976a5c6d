package meditation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/audio"
	"github.com/tahcohcat/gocalm-web/internal/logger"
)

// Output is the encoded final mix.
type Output struct {
	Data        []byte
	ContentType string
	Extension   string
	Duration    time.Duration
}

// Assembler mixes a timeline with the background track and encodes it.
// One Assembler serves every run; the decoded background is loaded once and
// only ever read afterwards.
type Assembler struct {
	rate        int
	silence     time.Duration
	minDuration time.Duration
	background  string
	gainDb      float64
	encoder     audio.Encoder
	logger      *logger.Log

	bgOnce sync.Once
	bg     *audio.Clip
	bgErr  error
}

func NewAssembler(cfg config.AudioConfig, encoder audio.Encoder) *Assembler {
	a := &Assembler{
		rate:        cfg.SampleRate,
		silence:     seconds(cfg.SilenceSeconds),
		minDuration: seconds(cfg.MinDurationSeconds),
		gainDb:      cfg.BackgroundGainDb,
		encoder:     encoder,
		logger:      logger.New(),
	}
	if cfg.BackgroundEnabled {
		a.background = cfg.BackgroundTrack
	}
	if a.encoder == nil {
		a.encoder = audio.WAVEncoder{}
	}
	return a
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (a *Assembler) SampleRate() int { return a.rate }

func (a *Assembler) SilenceDuration() time.Duration { return a.silence }

// Background returns the attenuated background track, or nil when
// background mixing is disabled.
func (a *Assembler) Background() (*audio.Clip, error) {
	if a.background == "" {
		return nil, nil
	}
	a.bgOnce.Do(func() {
		clip, err := audio.LoadFile(a.background, a.rate)
		switch {
		case errors.Is(err, os.ErrNotExist):
			a.bgErr = fail(ErrAssetMissing, fmt.Errorf("background track %s not found", a.background))
		case err != nil:
			a.bgErr = fail(ErrAssetMissing, err)
		case clip.Len() == 0:
			a.bgErr = fail(ErrAssetMissing, fmt.Errorf("background track %s is empty", a.background))
		default:
			a.bg = clip.Gain(a.gainDb)
			a.logger.Info(fmt.Sprintf("Loaded background track %s (%s)", a.background, clip.Duration().Round(time.Millisecond)))
		}
	})
	return a.bg, a.bgErr
}

// Mix renders the timeline and lays the looped background underneath it.
// The result is exactly as long as the timeline.
func (a *Assembler) Mix(tl Timeline) (*audio.Clip, error) {
	fg, err := tl.Render(a.rate)
	if err != nil {
		return nil, err
	}
	if fg.Duration() < a.minDuration {
		return nil, fail(ErrTooShort, fmt.Errorf("got %s, need at least %s", fg.Duration().Round(time.Millisecond), a.minDuration))
	}

	bg, err := a.Background()
	if err != nil {
		return nil, err
	}
	if bg == nil {
		return fg, nil
	}
	return fg.Overlay(bg.LoopTo(fg.Len()))
}

// Assemble mixes and encodes the timeline.
func (a *Assembler) Assemble(ctx context.Context, tl Timeline) (*Output, error) {
	mix, err := a.Mix(tl)
	if err != nil {
		return nil, err
	}

	data, err := a.encoder.Encode(ctx, mix)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", a.encoder.Extension(), err)
	}

	return &Output{
		Data:        data,
		ContentType: a.encoder.ContentType(),
		Extension:   a.encoder.Extension(),
		Duration:    mix.Duration(),
	}, nil
}
