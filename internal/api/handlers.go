package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/voxlab/speechforge/internal/db"
	"github.com/voxlab/speechforge/internal/models"
	"github.com/voxlab/speechforge/internal/pipeline"
	"github.com/voxlab/speechforge/internal/queue"
	"github.com/voxlab/speechforge/internal/storage"
	"github.com/voxlab/speechforge/internal/tempfiles"
)

// maxUploadBytes bounds an uploaded reference-audio file.
const maxUploadBytes = 32 << 20

type Handler struct {
	db       *db.DB
	pipeline *pipeline.Pipeline
	storage  *storage.Storage
	temps    *tempfiles.Manager
}

func NewHandler(database *db.DB, p *pipeline.Pipeline, stor *storage.Storage, temps *tempfiles.Manager) *Handler {
	return &Handler{
		db:       database,
		pipeline: p,
		storage:  stor,
		temps:    temps,
	}
}

// Generate handles POST /v1/speech/generate. The body is either JSON (plain
// text or stored-preset reference) or multipart form data with an uploaded
// ref_audio file. The call blocks until the job reaches a terminal state.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requesterIdentity(w, r)
	if !ok {
		return
	}

	var params pipeline.SubmitParams
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		params, err = h.parseMultipart(r)
	} else {
		params, err = h.parseJSON(r)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	params.UserID = identity.userID
	params.UserEmail = identity.email
	if params.Username == "" {
		params.Username = identity.username
	}

	url, err := h.pipeline.Submit(r.Context(), params)
	if err != nil {
		if pipeline.IsClientError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, models.GenerateResponse{DownloadLink: url})
}

func (h *Handler) parseJSON(r *http.Request) (pipeline.SubmitParams, error) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return pipeline.SubmitParams{}, &models.ValidationError{Msg: "invalid request body"}
	}

	params := pipeline.SubmitParams{
		Text:      req.Text,
		Language:  req.Language,
		ModelName: req.ModelName,
		Username:  req.Username,
	}

	// A stored preset is materialized to a local temp file that the worker
	// deletes after use.
	if req.PresetAudioURL != "" {
		objectKey, err := h.storage.ObjectKeyFromURL(req.PresetAudioURL)
		if err != nil {
			return pipeline.SubmitParams{}, &models.ValidationError{Msg: "preset_audio_url does not point at stored audio"}
		}

		data, err := h.storage.Download(r.Context(), objectKey)
		if err != nil {
			return pipeline.SubmitParams{}, &models.ValidationError{Msg: "failed to fetch preset audio"}
		}

		path, err := h.temps.SaveBytes(data, "")
		if err != nil {
			return pipeline.SubmitParams{}, err
		}

		params.Reference = &queue.ReferenceAudio{
			Path:           path,
			Filename:       objectKey,
			MimeType:       "audio/wav",
			PromptText:     req.PromptText,
			PromptLanguage: req.PromptLanguage,
			DeleteAfterUse: true,
		}
	}

	return params, nil
}

func (h *Handler) parseMultipart(r *http.Request) (pipeline.SubmitParams, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return pipeline.SubmitParams{}, &models.ValidationError{Msg: "invalid multipart body"}
	}

	params := pipeline.SubmitParams{
		Text:      r.FormValue("text"),
		Language:  r.FormValue("text_language"),
		ModelName: r.FormValue("model_name"),
		Username:  r.FormValue("username"),
	}

	file, header, err := r.FormFile("ref_audio")
	if err != nil {
		return pipeline.SubmitParams{}, &models.ValidationError{Msg: "ref_audio file is required"}
	}
	defer file.Close()

	path, err := h.temps.Save(file, "")
	if err != nil {
		return pipeline.SubmitParams{}, err
	}

	params.Reference = &queue.ReferenceAudio{
		Path:           path,
		Filename:       header.Filename,
		MimeType:       header.Header.Get("Content-Type"),
		PromptText:     r.FormValue("prompt_text"),
		PromptLanguage: r.FormValue("prompt_language"),
		DeleteAfterUse: true,
	}

	return params, nil
}

// History handles GET /v1/speech/history with keyword/model/status filters
// and limit/offset pagination.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requesterIdentity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := models.HistoryFilter{
		Keyword:   q.Get("keyword"),
		ModelName: q.Get("model"),
		Status:    models.RequestStatus(q.Get("status")),
		Limit:     parseIntDefault(q.Get("limit"), 10),
		Offset:    parseIntDefault(q.Get("offset"), 0),
	}

	entries, err := h.db.GetHistory(r.Context(), identity.userID, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	total, err := h.db.CountHistory(r.Context(), identity.userID, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	respondJSON(w, http.StatusOK, models.HistoryResponse{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// requesterIdentity reads the identity headers set by the upstream auth
// layer. Token issuance and verification live outside this service.
type identity struct {
	userID   int64
	email    string
	username string
}

func (h *Handler) requesterIdentity(w http.ResponseWriter, r *http.Request) (identity, bool) {
	raw := r.Header.Get("X-User-ID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "missing or invalid X-User-ID header")
		return identity{}, false
	}

	return identity{
		userID:   userID,
		email:    r.Header.Get("X-User-Email"),
		username: r.Header.Get("X-Username"),
	}, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
