package profile

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/i18n"
	"suraksha-jal/internal/platform/httpjson"
)

// Languages reports which UI languages exist.
type Languages interface {
	Supported(lang string) bool
}

type Handler struct {
	repo  *Repository
	langs Languages
}

func NewHandler(repo *Repository, langs Languages) *Handler {
	return &Handler{repo: repo, langs: langs}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.Get(r.Context(), auth.Subject(r.Context()))
	if errors.Is(err, ErrNotFound) {
		httpjson.Error(w, http.StatusNotFound, "Profile not found.")
		return
	}
	if err != nil {
		h.repo.logger.Error("load profile failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not load your profile.")
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	var patch Patch
	if err := httpjson.Decode(w, r, &patch); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		httpjson.ValidationError(w, err)
		return
	}
	p, err := h.repo.Update(r.Context(), auth.Subject(r.Context()), patch)
	if errors.Is(err, ErrNotFound) {
		httpjson.Error(w, http.StatusNotFound, "Profile not found.")
		return
	}
	if err != nil {
		h.repo.logger.Error("update profile failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not save your profile.")
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

type languageBody struct {
	Language string `json:"language"`
}

func (h *Handler) GetLanguage(w http.ResponseWriter, r *http.Request) {
	lang, err := h.repo.Language(r.Context(), auth.Subject(r.Context()))
	if err != nil {
		h.repo.logger.Error("load language failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not load your language.")
		return
	}
	if lang == "" {
		lang = i18n.Default
	}
	httpjson.Write(w, http.StatusOK, languageBody{Language: lang})
}

func (h *Handler) PutLanguage(w http.ResponseWriter, r *http.Request) {
	var body languageBody
	if err := httpjson.Decode(w, r, &body); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.langs.Supported(body.Language) {
		httpjson.Error(w, http.StatusBadRequest, "Unsupported language: "+body.Language)
		return
	}
	if err := h.repo.SetLanguage(r.Context(), auth.Subject(r.Context()), body.Language); err != nil {
		h.repo.logger.Error("save language failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not save your language.")
		return
	}
	httpjson.Write(w, http.StatusOK, body)
}

// RequireHealthWorker rejects requests from accounts without health worker status.
func (r *Repository) RequireHealthWorker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ok, err := r.IsHealthWorker(req.Context(), auth.Subject(req.Context()))
		if err != nil {
			r.logger.Error("health worker check failed", "err", err)
			httpjson.Error(w, http.StatusInternalServerError, "Something went wrong. Please try again later.")
			return
		}
		if !ok {
			httpjson.Error(w, http.StatusForbidden, "This action is only available to registered health workers.")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/profile", h.Get)
	r.Patch("/profile", h.Patch)
	r.Get("/preferences/language", h.GetLanguage)
	r.Put("/preferences/language", h.PutLanguage)
}
