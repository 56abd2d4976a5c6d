// Package audio holds the PCM primitives the meditation pipeline is built
// from: immutable mono clips, silence, concatenation, gain, looping and
// overlay, plus decoding of provider output and encoding of the final mix.
//
// Every operation returns a new Clip. A Clip handed to another stage is
// never written to again, so clips can be shared between goroutines.
package audio

import (
	"fmt"
	"math"
	"time"
)

// Clip is a mono 16-bit PCM buffer at a fixed sample rate.
type Clip struct {
	samples []int16
	rate    int
}

// NewClip copies samples into a new clip.
func NewClip(samples []int16, rate int) *Clip {
	cp := make([]int16, len(samples))
	copy(cp, samples)
	return &Clip{samples: cp, rate: rate}
}

// wrap takes ownership of samples without copying.
func wrap(samples []int16, rate int) *Clip {
	return &Clip{samples: samples, rate: rate}
}

// Silence returns a clip of digital silence lasting d.
func Silence(d time.Duration, rate int) *Clip {
	n := SamplesFor(d, rate)
	return wrap(make([]int16, n), rate)
}

// SamplesFor converts a duration into a sample count at rate, rounding to
// the nearest sample.
func SamplesFor(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(rate)))
}

func (c *Clip) SampleRate() int { return c.rate }

// Len is the number of samples in the clip.
func (c *Clip) Len() int { return len(c.samples) }

func (c *Clip) Duration() time.Duration {
	if c.rate == 0 {
		return 0
	}
	return time.Duration(int64(len(c.samples)) * int64(time.Second) / int64(c.rate))
}

// Samples returns a copy of the clip's samples.
func (c *Clip) Samples() []int16 {
	cp := make([]int16, len(c.samples))
	copy(cp, c.samples)
	return cp
}

// Slice returns samples [start, end) as a new clip. Out-of-range bounds are
// clamped.
func (c *Clip) Slice(start, end int) *Clip {
	if start < 0 {
		start = 0
	}
	if end > len(c.samples) {
		end = len(c.samples)
	}
	if start >= end {
		return wrap(nil, c.rate)
	}
	return NewClip(c.samples[start:end], c.rate)
}

// Concat joins clips end to end. All clips must share the same sample rate.
func Concat(rate int, clips ...*Clip) (*Clip, error) {
	total := 0
	for i, clip := range clips {
		if clip.rate != rate {
			return nil, fmt.Errorf("clip %d has sample rate %d, want %d", i, clip.rate, rate)
		}
		total += len(clip.samples)
	}

	out := make([]int16, 0, total)
	for _, clip := range clips {
		out = append(out, clip.samples...)
	}
	return wrap(out, rate), nil
}

// Gain scales the clip by db decibels (negative values attenuate).
func (c *Clip) Gain(db float64) *Clip {
	factor := math.Pow(10, db/20)
	out := make([]int16, len(c.samples))
	for i, s := range c.samples {
		out[i] = clamp(float64(s) * factor)
	}
	return wrap(out, c.rate)
}

// LoopTo repeats whole copies of the clip and then a truncated prefix until
// it is exactly n samples long. An empty clip loops to silence.
func (c *Clip) LoopTo(n int) *Clip {
	out := make([]int16, n)
	if len(c.samples) == 0 {
		return wrap(out, c.rate)
	}
	for pos := 0; pos < n; pos += len(c.samples) {
		copy(out[pos:], c.samples)
	}
	return wrap(out, c.rate)
}

// Overlay mixes under beneath c starting at sample zero. The result always
// has c's length: a longer under is cut off and a shorter one simply ends.
func (c *Clip) Overlay(under *Clip) (*Clip, error) {
	if under.rate != c.rate {
		return nil, fmt.Errorf("overlay sample rate %d does not match %d", under.rate, c.rate)
	}

	out := make([]int16, len(c.samples))
	copy(out, c.samples)
	n := len(under.samples)
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = clamp(float64(out[i]) + float64(under.samples[i]))
	}
	return wrap(out, c.rate), nil
}

func clamp(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
