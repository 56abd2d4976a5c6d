package tts

import (
	"regexp"
	"strings"

	"github.com/schollz/closestmatch"
)

// premadeVoices are ElevenLabs' stock narrator voices.
var premadeVoices = map[string]string{
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"domi":   "AZnzlk1XvdvUeBnXmlld",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"antoni": "ErXwobaYiN019PkySvjV",
	"elli":   "MF3mGyEYCl7XYWbV9V6O",
	"josh":   "TxGEqnHWrfWFTfGW9XjX",
	"arnold": "VR6AewLTigWG4xSOukaG",
	"adam":   "pNInz6obpgDQGcFmaJgB",
	"sam":    "yoZ06aMxZJJ28mfd3POQ",
}

var voiceIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{20}$`)

// ResolveVoiceID maps a configured voice to an ElevenLabs voice id. Raw ids
// pass through; names are matched against the stock catalog, tolerating
// typos ("Rachael" resolves to Rachel). ok is false when nothing matched.
func ResolveVoiceID(voice string) (id string, ok bool) {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return premadeVoices["rachel"], true
	}

	key := strings.ToLower(voice)
	if id, found := premadeVoices[key]; found {
		return id, true
	}
	if voiceIDPattern.MatchString(voice) {
		return voice, true
	}

	names := make([]string, 0, len(premadeVoices))
	for name := range premadeVoices {
		names = append(names, name)
	}
	cm := closestmatch.New(names, []int{2})
	best := cm.Closest(key)
	if best == "" {
		return "", false
	}
	return premadeVoices[best], true
}
