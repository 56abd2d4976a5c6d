package tts

import "testing"

func TestResolveVoiceID(t *testing.T) {
	tests := []struct {
		name   string
		voice  string
		wantID string
		wantOK bool
	}{
		{"exact name", "Rachel", "21m00Tcm4TlvDq8ikWAM", true},
		{"lower case", "rachel", "21m00Tcm4TlvDq8ikWAM", true},
		{"misspelled", "Rachael", "21m00Tcm4TlvDq8ikWAM", true},
		{"raw id", "AZnzlk1XvdvUeBnXmlld", "AZnzlk1XvdvUeBnXmlld", true},
		{"empty defaults to Rachel", "", "21m00Tcm4TlvDq8ikWAM", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ResolveVoiceID(tt.voice)
			if ok != tt.wantOK {
				t.Fatalf("ResolveVoiceID(%q) ok = %v, want %v", tt.voice, ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("ResolveVoiceID(%q) = %q, want %q", tt.voice, id, tt.wantID)
			}
		})
	}
}
