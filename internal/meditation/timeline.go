package meditation

import (
	"time"

	"github.com/tahcohcat/gocalm-web/internal/audio"
	"github.com/tahcohcat/gocalm-web/internal/script"
)

type EntryKind int

const (
	Speech EntryKind = iota
	Silence
)

// Entry is one clip on the foreground timeline. SegmentIndex points back at
// the script segment that produced it (the spoken segment for Speech, the
// pause for Silence).
type Entry struct {
	Kind         EntryKind
	Clip         *audio.Clip
	SegmentIndex int
}

type Timeline struct {
	Entries []Entry
}

// BuildTimeline lays out voiced segments in script order with one silence
// between two voiced segments that a pause separated. clips is indexed like
// segments; a nil clip marks a segment that was skipped, and skipping never
// produces two silences in a row.
func BuildTimeline(segments []script.Segment, clips []*audio.Clip, silence time.Duration, rate int) Timeline {
	var (
		tl      Timeline
		voiced  bool
		pending = -1
	)

	for i, seg := range segments {
		if seg.Kind == script.Pause {
			if pending < 0 {
				pending = seg.Index
			}
			continue
		}
		if i >= len(clips) || clips[i] == nil {
			continue
		}
		if voiced && pending >= 0 && silence > 0 {
			tl.Entries = append(tl.Entries, Entry{Kind: Silence, Clip: audio.Silence(silence, rate), SegmentIndex: pending})
		}
		tl.Entries = append(tl.Entries, Entry{Kind: Speech, Clip: clips[i], SegmentIndex: seg.Index})
		voiced = true
		pending = -1
	}
	return tl
}

// Duration is the exact length of the foreground.
func (t Timeline) Duration() time.Duration {
	var d time.Duration
	for _, e := range t.Entries {
		d += e.Clip.Duration()
	}
	return d
}

func (t Timeline) Count(kind EntryKind) int {
	n := 0
	for _, e := range t.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Render concatenates the timeline into a single clip.
func (t Timeline) Render(rate int) (*audio.Clip, error) {
	clips := make([]*audio.Clip, len(t.Entries))
	for i, e := range t.Entries {
		clips[i] = e.Clip
	}
	return audio.Concat(rate, clips...)
}
