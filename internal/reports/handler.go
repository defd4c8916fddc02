package reports

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.svc.logger.Error("list reports failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not load reports.")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"reports": list})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub Submission
	if err := httpjson.Decode(w, r, &sub); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.svc.Submit(r.Context(), auth.Subject(r.Context()), sub)
	switch {
	case errors.Is(err, ErrNotHealthWorker):
		httpjson.Error(w, http.StatusForbidden, "Only registered health workers can submit reports.")
		return
	case errors.Is(err, flows.ErrInvalidInput):
		flows.WriteError(w, err)
		return
	case err != nil:
		h.svc.logger.Error("submit report failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not save the report. Please try again.")
		return
	}
	httpjson.Write(w, http.StatusCreated, report)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var in flows.GenerateReportsInput
	if err := httpjson.Decode(w, r, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	generated, err := h.svc.Generate(r.Context(), in)
	if errors.Is(err, ErrIDConflict) {
		httpjson.Error(w, http.StatusConflict, "Reports were generated too quickly. Please try again.")
		return
	}
	if err != nil {
		h.svc.logger.Warn("generate reports failed", "err", err)
		flows.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, map[string]any{"reports": generated})
}

type summaryRequest struct {
	Language *string `json:"language,omitempty"`
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if r.ContentLength != 0 {
		if err := httpjson.Decode(w, r, &req); err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	out, err := h.svc.Summarize(r.Context(), req.Language)
	if err != nil {
		h.svc.logger.Warn("summarize reports failed", "err", err)
		flows.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.svc.logger.Error("list reports failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not load reports.")
		return
	}
	pdf, err := h.svc.ExportPDF(list)
	if err != nil {
		h.svc.logger.Error("export pdf failed", "err", err)
		httpjson.Error(w, http.StatusInternalServerError, "Could not create the PDF.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName(h.svc.now())+`"`)
	_, _ = w.Write(pdf)
}

func (h *Handler) SendDigest(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SendDigest(r.Context()); err != nil {
		h.svc.logger.Error("send digest failed", "err", err)
		httpjson.Error(w, http.StatusBadGateway, "Could not send the report digest.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes mounts the report routes; healthWorker guards the digest.
func RegisterRoutes(r chi.Router, h *Handler, healthWorker func(http.Handler) http.Handler) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Submit)
		r.Post("/generate", h.Generate)
		r.Post("/summary", h.Summary)
		r.Get("/export.pdf", h.ExportPDF)
		r.With(healthWorker).Post("/export/telegram", h.SendDigest)
	})
}
