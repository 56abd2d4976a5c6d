// internal/api/handlers.go
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/gocalm-web/internal/auth"
	"github.com/tahcohcat/gocalm-web/internal/credits"
	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/meditation"
	"github.com/tahcohcat/gocalm-web/internal/models"
	"github.com/tahcohcat/gocalm-web/internal/services"
	"github.com/tahcohcat/gocalm-web/internal/storage"
	"github.com/tahcohcat/gocalm-web/internal/worker"
)

// MeditationHandler serves the meditation, job and media endpoints.
type MeditationHandler struct {
	jobs        *services.JobService
	meditations *services.MeditationService
	users       *services.UserService
	ledger      *credits.Service
	store       storage.Store
	pool        *worker.Pool
	logger      *logger.Log
}

func NewMeditationHandler(jobs *services.JobService, meditations *services.MeditationService, users *services.UserService,
	ledger *credits.Service, store storage.Store, pool *worker.Pool) *MeditationHandler {
	return &MeditationHandler{
		jobs:        jobs,
		meditations: meditations,
		users:       users,
		ledger:      ledger,
		store:       store,
		pool:        pool,
		logger:      logger.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func currentUser(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
	}
	return id, ok
}

// situationFrom accepts a JSON body or the classic form field.
func situationFrom(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req models.CreateMeditationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.Situation, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("situation"), nil
}

// enqueue charges the user and queues a job, answering the request itself
// when that is not possible.
func (h *MeditationHandler) enqueue(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}

	situation, err := situationFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	job, err := h.jobs.Enqueue(userID, situation)
	switch {
	case errors.Is(err, services.ErrInvalidSituation):
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	case errors.Is(err, credits.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "Not enough credits")
		return nil, false
	case err != nil:
		h.logger.WithError(err).Error("Failed to enqueue meditation")
		writeError(w, http.StatusInternalServerError, "Failed to queue meditation")
		return nil, false
	}
	return job, true
}

// POST /api/v1/meditations - Queue a meditation and return its job id
func (h *MeditationHandler) CreateMeditation(w http.ResponseWriter, r *http.Request) {
	job, ok := h.enqueue(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// POST /api/v1/meditations/sync - Generate within the request and return the audio
func (h *MeditationHandler) CreateMeditationSync(w http.ResponseWriter, r *http.Request) {
	job, ok := h.enqueue(w, r)
	if !ok {
		return
	}

	claimed, err := h.jobs.ClaimByID(job.ID, "sync")
	if err != nil {
		// A worker picked it up first; the client can poll instead.
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
		return
	}

	m, data, err := h.pool.Process(r.Context(), claimed)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, meditation.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, models.JobStatusResponse{
			JobID:  job.ID,
			Status: models.JobFailed,
			Error:  meditation.Message(err),
		})
		return
	}

	w.Header().Set("Content-Type", m.ContentType)
	w.Header().Set("X-Job-ID", job.ID)
	w.Header().Set("X-Meditation-ID", m.ID)
	w.Write(data)
}

func (h *MeditationHandler) statusFor(job *models.Job) models.JobStatusResponse {
	resp := models.JobStatusResponse{JobID: job.ID, Status: job.Status, Error: job.Error}
	if job.Status == models.JobDone && job.MeditationID != nil {
		resp.AudioURL = worker.MediaURL(*job.MeditationID)
	}
	return resp
}

// GET /api/v1/jobs/{id} - Poll a job
func (h *MeditationHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetForUser(mux.Vars(r)["id"], userID)
	if errors.Is(err, services.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, h.statusFor(job))
}

// GET /status/{id} - Polling route kept for older clients. Queued jobs
// report "processing" and unknown ids report "failed".
func (h *MeditationHandler) LegacyStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetForUser(mux.Vars(r)["id"], userID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(models.JobFailed)})
		return
	}

	resp := h.statusFor(job)
	out := map[string]string{"status": string(resp.Status)}
	switch resp.Status {
	case models.JobQueued, models.JobProcessing:
		out["status"] = string(models.JobProcessing)
	case models.JobDone:
		out["audio_url"] = resp.AudioURL
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/meditations - The user's finished meditations
func (h *MeditationHandler) ListMeditations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.meditations.ListForUser(userID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list meditations")
		return
	}

	type item struct {
		models.Meditation
		AudioURL string `json:"audio_url"`
	}
	out := make([]item, 0, len(list))
	for _, m := range list {
		out = append(out, item{Meditation: m, AudioURL: worker.MediaURL(m.ID)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"meditations": out})
}

// GET /media/{id} - Stream a finished meditation to its owner
func (h *MeditationHandler) Media(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	m, err := h.meditations.Get(mux.Vars(r)["id"])
	if err != nil || m.UserID != userID {
		http.NotFound(w, r)
		return
	}

	data, err := h.store.Get(r.Context(), m.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusGone, "Meditation has expired")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("meditation_id", m.ID).Error("Failed to read artifact")
		writeError(w, http.StatusInternalServerError, "Failed to read meditation")
		return
	}

	w.Header().Set("Content-Type", m.ContentType)
	w.Header().Set("Content-Disposition", `inline; filename="meditation`+path.Ext(m.StorageKey)+`"`)
	http.ServeContent(w, r, m.StorageKey, m.CreatedAt, bytes.NewReader(data))
}

// GET /api/v1/credits - Balance, price and recent ledger entries
func (h *MeditationHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balance")
		return
	}
	history, err := h.ledger.History(userID, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance": balance,
		"cost":    h.ledger.Cost(),
		"history": history,
	})
}

// GET /api/v1/profile - Current user
func (h *MeditationHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// POST /api/v1/profile/password - Change password
func (h *MeditationHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.users.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RegisterRoutes mounts the API on r (already behind auth) and the media
// and legacy status routes on root.
func RegisterRoutes(api, root *mux.Router, h *MeditationHandler) {
	api.HandleFunc("/meditations", h.CreateMeditation).Methods("POST")
	api.HandleFunc("/meditations/sync", h.CreateMeditationSync).Methods("POST")
	api.HandleFunc("/meditations", h.ListMeditations).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/credits", h.GetCredits).Methods("GET")
	api.HandleFunc("/profile", h.GetProfile).Methods("GET")
	api.HandleFunc("/profile/password", h.ChangePassword).Methods("POST")

	root.HandleFunc("/media/{id}", h.Media).Methods("GET")
	root.HandleFunc("/status/{id}", h.LegacyStatus).Methods("GET")
}
