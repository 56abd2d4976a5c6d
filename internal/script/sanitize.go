package script

import (
	"regexp"
	"strings"
)

var (
	markdownPattern   = regexp.MustCompile("[*_#`~]+")
	disallowedPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?'"-]`)
	spacesPattern     = regexp.MustCompile(`[ \t]+`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
	wordPattern       = regexp.MustCompile(`[\p{L}\p{N}]`)

	punctuationReplacer = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-",
		"…", "...",
	)
)

// Sanitize reduces model output to plain narration text. Occurrences of
// marker (matched case-insensitively) are kept verbatim even when they
// contain characters that the filter would otherwise drop.
func Sanitize(text, marker string) string {
	re := markerPattern(marker)
	if re == nil {
		return cleanText(text)
	}

	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		b.WriteString(cleanText(text[last:loc[0]]))
		b.WriteString(" ")
		b.WriteString(marker)
		last = loc[1]
	}
	b.WriteString(cleanText(text[last:]))

	return tidySpaces(b.String())
}

func cleanText(s string) string {
	s = markdownPattern.ReplaceAllString(s, "")
	s = punctuationReplacer.Replace(s)
	s = disallowedPattern.ReplaceAllString(s, "")
	return s
}

func tidySpaces(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacesPattern.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLinesPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// markerPattern matches the bare marker phrase. It returns nil for a blank
// marker.
func markerPattern(marker string) *regexp.Regexp {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker))
}

// hasWords reports whether s contains anything a narrator could say.
func hasWords(s string) bool {
	return wordPattern.MatchString(s)
}
