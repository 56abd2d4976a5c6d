package script

import (
	"regexp"
	"strings"
)

type Kind int

const (
	Spoken Kind = iota
	Pause
)

func (k Kind) String() string {
	if k == Pause {
		return "pause"
	}
	return "spoken"
}

// Segment is one piece of a split script. Index is the segment's position
// in the slice returned by Split.
type Segment struct {
	Kind  Kind
	Text  string
	Index int
}

// Splitter cuts a script at pause markers.
type Splitter struct {
	marker string
	re     *regexp.Regexp
}

// NewSplitter matches marker case-insensitively, together with any
// punctuation and whitespace directly following it, so that
// "Now, take a moment of silence." leaves no stray period behind.
func NewSplitter(marker string) *Splitter {
	s := &Splitter{marker: strings.TrimSpace(marker)}
	if s.marker != "" {
		s.re = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(s.marker) + `[.,;:!]*\s*`)
	}
	return s
}

func (s *Splitter) Marker() string {
	return s.marker
}

// Split returns spoken segments in script order with a single Pause between
// two spoken segments wherever one or more markers separated them. Leading
// and trailing markers produce no pause, and pieces without any word
// characters are dropped.
func (s *Splitter) Split(text string) []Segment {
	pieces := []string{text}
	if s.re != nil {
		pieces = s.re.Split(text, -1)
	}

	var segments []Segment
	spoken := 0
	pausePending := false
	for i, piece := range pieces {
		if i > 0 {
			pausePending = true
		}
		piece = strings.TrimSpace(piece)
		if !hasWords(piece) {
			continue
		}
		if pausePending && spoken > 0 {
			segments = append(segments, Segment{Kind: Pause, Index: len(segments)})
		}
		segments = append(segments, Segment{Kind: Spoken, Text: piece, Index: len(segments)})
		spoken++
		pausePending = false
	}
	return segments
}

// SpokenText joins the spoken segments back into one string with single
// spaces between words.
func SpokenText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Kind == Spoken {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// CountPauses returns the number of Pause segments.
func CountPauses(segments []Segment) int {
	n := 0
	for _, seg := range segments {
		if seg.Kind == Pause {
			n++
		}
	}
	return n
}
