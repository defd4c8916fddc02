package dictation

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/platform/httpjson"
)

// Sessions untouched for this long are dropped with their buffered audio.
const sessionIdleTTL = 15 * time.Minute

type session struct {
	owner    string
	recorder *Recorder
	lastUsed time.Time
}

type Handler struct {
	tr     Transcriber
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

func NewHandler(tr Transcriber, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{tr: tr, now: time.Now, logger: logger, sessions: make(map[uuid.UUID]*session)}
}

type createRequest struct {
	Language *string `json:"language,omitempty"`
	Text     string  `json:"text,omitempty"`
}

type response struct {
	ID uuid.UUID `json:"id"`
	Snapshot
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := httpjson.Decode(w, r, &req); err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	rec := NewRecorder(h.tr, req.Language)
	rec.SetText(req.Text)
	id := uuid.New()
	h.mu.Lock()
	h.sweep()
	h.sessions[id] = &session{owner: auth.Subject(r.Context()), recorder: rec, lastUsed: h.now()}
	h.mu.Unlock()
	httpjson.Write(w, http.StatusCreated, response{ID: id, Snapshot: rec.Snapshot()})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (uuid.UUID, *Recorder, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid dictation ID")
		return id, nil, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	now := h.now()
	if ok && now.Sub(s.lastUsed) > sessionIdleTTL {
		delete(h.sessions, id)
		ok = false
	}
	if !ok || s.owner != auth.Subject(r.Context()) {
		httpjson.Error(w, http.StatusNotFound, "Dictation not found")
		return id, nil, false
	}
	s.lastUsed = now
	return id, s.recorder, true
}

// sweep drops idle sessions. Callers hold h.mu.
func (h *Handler) sweep() {
	cutoff := h.now().Add(-sessionIdleTTL)
	for id, s := range h.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(h.sessions, id)
		}
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httpjson.Write(w, http.StatusOK, response{ID: id, Snapshot: rec.Snapshot()})
}

type permissionRequest struct {
	Granted bool `json:"granted"`
}

func (h *Handler) Permission(w http.ResponseWriter, r *http.Request) {
	id, rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, response{ID: id, Snapshot: rec.SetPermission(req.Granted)})
}

type startRequest struct {
	MimeType string `json:"mimeType"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id, rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req startRequest
	if r.ContentLength != 0 {
		if err := httpjson.Decode(w, r, &req); err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	snap, err := rec.Start(req.MimeType)
	switch {
	case errors.Is(err, ErrPermissionDenied):
		httpjson.Error(w, http.StatusForbidden, "Microphone access was denied. Please allow microphone access to use voice input.")
	case err != nil:
		httpjson.Error(w, http.StatusConflict, err.Error())
	default:
		httpjson.Write(w, http.StatusOK, response{ID: id, Snapshot: snap})
	}
}

// Chunk appends the raw request body to the recording.
func (h *Handler) Chunk(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || (mt != "application/octet-stream" && !strings.HasPrefix(mt, "audio/")) {
			httpjson.Error(w, http.StatusUnsupportedMediaType, "Audio chunks must be sent as raw audio bytes")
			return
		}
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordingBytes))
	if err != nil {
		httpjson.Error(w, http.StatusRequestEntityTooLarge, "Audio chunk is too large")
		return
	}
	if err := rec.Write(data); err != nil {
		httpjson.Error(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	id, rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap, err := rec.Stop(r.Context())
	switch {
	case err == nil:
		httpjson.Write(w, http.StatusOK, response{ID: id, Snapshot: snap})
	case errors.Is(err, ErrNotRecording), errors.Is(err, ErrEmptyRecording):
		httpjson.Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.Warn("transcription failed", "dictation", id, "err", err)
		flows.WriteError(w, err)
	}
}

type textRequest struct {
	Text string `json:"text"`
}

func (h *Handler) SetText(w http.ResponseWriter, r *http.Request) {
	id, rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, response{ID: id, Snapshot: rec.SetText(req.Text)})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/dictations", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/permission", h.Permission)
		r.Post("/{id}/start", h.Start)
		r.Post("/{id}/chunks", h.Chunk)
		r.Post("/{id}/stop", h.Stop)
		r.Put("/{id}/text", h.SetText)
		r.Delete("/{id}", h.Delete)
	})
}
