package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"suraksha-jal/internal/platform/httpjson"
)

// ProfileSeeder creates the initial profile of a newly registered account.
type ProfileSeeder interface {
	Seed(ctx context.Context, email, displayName string) error
}

type Handler struct {
	provider *Provider
	profiles ProfileSeeder
	logger   *slog.Logger
}

func NewHandler(p *Provider, profiles ProfileSeeder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = p.logger
	}
	return &Handler{provider: p, profiles: profiles, logger: logger}
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.provider.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeAuthError(w, "register", err)
		return
	}
	if err := h.profiles.Seed(r.Context(), session.Email, session.DisplayName); err != nil {
		h.logger.Error("seed profile failed", "email", session.Email, "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Account created but the profile could not be saved.")
		return
	}
	httpjson.Write(w, http.StatusCreated, session)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, "signin", err)
		return
	}
	httpjson.Write(w, http.StatusOK, session)
}

func (h *Handler) writeAuthError(w http.ResponseWriter, op string, err error) {
	var aerr *Error
	if errors.As(err, &aerr) {
		h.logger.Info("auth rejected", "op", op, "code", aerr.Code)
	} else {
		h.logger.Error("auth internal error", "op", op, "err", err)
	}
	WriteError(w, err)
}

// WriteError writes an auth failure with its code and user-readable text.
func WriteError(w http.ResponseWriter, err error) {
	var aerr *Error
	if !errors.As(err, &aerr) {
		httpjson.Error(w, http.StatusInternalServerError, MessageFor(err))
		return
	}
	status := http.StatusUnauthorized
	switch aerr.Code {
	case CodeInvalidEmail, CodeWeakPassword:
		status = http.StatusBadRequest
	case CodeEmailAlreadyInUse:
		status = http.StatusConflict
	case CodeTooManyRequests:
		status = http.StatusTooManyRequests
	case CodeUserNotFound:
		status = http.StatusNotFound
	}
	httpjson.Write(w, status, map[string]string{"error": aerr.Message(), "code": string(aerr.Code)})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/signin", h.SignIn)
}
