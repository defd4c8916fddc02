package chat

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/media"
	"suraksha-jal/internal/platform/httpjson"
)

const maxAudioBytes = 10 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Language *string `json:"language,omitempty"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := httpjson.Decode(w, r, &req); err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	sess, err := h.svc.Create(r.Context(), auth.Subject(r.Context()), req.Language)
	if err != nil {
		h.svc.logger.Error("create chat session failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Failed to start chat")
		return
	}
	httpjson.Write(w, http.StatusCreated, sess)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid chat session ID")
		return id, false
	}
	return id, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.Get(r.Context(), auth.Subject(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, sess)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, err := h.svc.Send(r.Context(), auth.Subject(r.Context()), id, req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, reply)
}

type audioResponse struct {
	Text  string   `json:"text"`
	Reply *Message `json:"reply,omitempty"`
}

// Audio accepts a multipart "audio" file, transcribes it and sends the
// transcript as the next message.
func (h *Handler) Audio(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Error retrieving audio file")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Failed to read audio file")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "audio/webm"
	}

	text, reply, err := h.svc.SendAudio(r.Context(), auth.Subject(r.Context()), id, media.New(mimeType, buf.Bytes()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, audioResponse{Text: text, Reply: reply})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpjson.Error(w, http.StatusNotFound, "Chat session not found")
		return
	}
	if status, _ := flows.Status(err); status >= http.StatusInternalServerError {
		h.svc.logger.Warn("chat turn failed", "err", err)
	}
	flows.WriteError(w, err)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/chat/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/messages", h.Send)
		r.Post("/{id}/audio", h.Audio)
	})
}
