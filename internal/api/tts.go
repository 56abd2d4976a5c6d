package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/gocalm-web/internal/tts"
)

const maxPreviewRunes = 300

type TTSHandler struct {
	synth tts.Synthesizer
}

type TTSRequest struct {
	Text string `json:"text"`
}

func NewTTSHandler(synth tts.Synthesizer) *TTSHandler {
	return &TTSHandler{synth: synth}
}

func (th *TTSHandler) speak(w http.ResponseWriter, r *http.Request, text string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	audio, err := th.synth.Synthesize(ctx, text)
	if err != nil {
		http.Error(w, "Failed to generate TTS: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(audio.Data)
}

// POST /api/v1/tts/speak - Read a short text in the narrator voice
func (th *TTSHandler) SpeakText(w http.ResponseWriter, r *http.Request) {
	var req TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		http.Error(w, "Text is required", http.StatusBadRequest)
		return
	}
	if len([]rune(text)) > maxPreviewRunes {
		http.Error(w, "Text is too long for a preview", http.StatusBadRequest)
		return
	}

	th.speak(w, r, text, 30*time.Second)
}

// GET /api/v1/tts/test - Check the configured provider end to end
func (th *TTSHandler) TestTTS(w http.ResponseWriter, r *http.Request) {
	th.speak(w, r, "Welcome. Find a comfortable position, and let your breath slow down.", 15*time.Second)
}

func RegisterTTSRoutes(r *mux.Router, synth tts.Synthesizer) {
	th := NewTTSHandler(synth)
	r.HandleFunc("/tts/speak", th.SpeakText).Methods("POST")
	r.HandleFunc("/tts/test", th.TestTTS).Methods("GET")
}
