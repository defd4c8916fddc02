package registration

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/platform/httpjson"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type sessionResponse struct {
	ID uuid.UUID `json:"id"`
	Status
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid registration ID")
		return nil, false
	}
	sess, err := h.svc.Get(id)
	if err != nil {
		httpjson.Error(w, http.StatusNotFound, "Registration expired. Please start again.")
		return nil, false
	}
	return sess, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess := h.svc.Start()
	httpjson.Write(w, http.StatusCreated, sessionResponse{ID: sess.ID, Status: sess.Capture.Status()})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httpjson.Write(w, http.StatusOK, sessionResponse{ID: sess.ID, Status: sess.Capture.Status()})
}

type permissionRequest struct {
	Granted bool `json:"granted"`
}

func (h *Handler) Permission(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, sessionResponse{ID: sess.ID, Status: sess.Capture.SetPermission(req.Granted)})
}

type captureRequest struct {
	PhotoDataURI string `json:"photoDataUri"`
}

func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req captureRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := sess.Capture.Capture(r.Context(), req.PhotoDataURI)
	switch {
	case err == nil:
		httpjson.Write(w, http.StatusOK, sessionResponse{ID: sess.ID, Status: status})
	case errors.Is(err, ErrPermissionDenied):
		httpjson.Error(w, http.StatusForbidden, "Camera access was denied. Please allow camera access in your browser settings.")
	case errors.Is(err, ErrPermissionRequired), errors.Is(err, ErrBusy):
		httpjson.Error(w, http.StatusConflict, err.Error())
	default:
		h.svc.logger.Warn("face verification failed", "registration", sess.ID, "err", err)
		flows.WriteError(w, err)
	}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var d Details
	if err := httpjson.Decode(w, r, &d); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Complete(r.Context(), sess.ID, d)
	var aerr *auth.Error
	switch {
	case err == nil:
		httpjson.Write(w, http.StatusCreated, res)
	case errors.Is(err, ErrNotVerified):
		httpjson.Error(w, http.StatusConflict, "Please capture a verified photo of your face first.")
	case errors.As(err, &aerr):
		auth.WriteError(w, err)
	default:
		h.svc.logger.Error("complete registration failed", "registration", sess.ID, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Registration failed. Please try again.")
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Capture.Reset()
	h.svc.Cancel(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/health-workers/registrations", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/permission", h.Permission)
		r.Post("/{id}/capture", h.Capture)
		r.Post("/{id}/submit", h.Submit)
		r.Delete("/{id}", h.Delete)
	})
}
