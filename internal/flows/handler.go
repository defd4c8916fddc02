package flows

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/notify"
	"suraksha-jal/internal/platform/httpjson"
)

// Publisher receives the error notification of a failed generation.
type Publisher interface {
	Publish(owner string, n notify.Notification)
}

type Handler struct {
	svc    *Service
	notes  Publisher
	logger *slog.Logger
}

func NewHandler(svc *Service, notes Publisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = svc.logger
	}
	return &Handler{svc: svc, notes: notes, logger: logger}
}

// Status maps a façade error to an HTTP status and user-readable text.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "Please check the highlighted fields."
	case errors.Is(err, genai.ErrOverloaded):
		return http.StatusServiceUnavailable, "The assistant is busy right now. Please try again in a minute."
	case errors.Is(err, genai.ErrUnavailable):
		return http.StatusServiceUnavailable, "The assistant could not be reached. Please check your connection and try again later."
	case errors.Is(err, genai.ErrMalformedResult):
		return http.StatusBadGateway, "The assistant returned an unexpected answer. Please try again."
	case errors.Is(err, context.Canceled):
		return 499, "Request cancelled."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again later."
	}
}

// WriteError writes err as JSON. Invalid input carries the field list.
func WriteError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidInput) {
		httpjson.ValidationError(w, err)
		return
	}
	status, msg := Status(err)
	httpjson.Error(w, status, msg)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, title string, err error) {
	status, msg := Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("flow failed", "flow", title, "err", err)
		if owner := auth.Subject(r.Context()); owner != "" && h.notes != nil {
			h.notes.Publish(owner, notify.Error(title, msg))
		}
	} else {
		h.logger.Info("flow rejected", "flow", title, "err", err)
	}
	WriteError(w, err)
}

func serve[In, Out any](h *Handler, title string, run func(context.Context, In) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := httpjson.Decode(w, r, &in); err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		out, err := run(r.Context(), in)
		if err != nil {
			h.fail(w, r, title, err)
			return
		}
		httpjson.Write(w, http.StatusOK, out)
	}
}

// medicine requests go through MedicineForm so a name and a photo never
// reach the backend together; the name is applied last and wins.
func (h *Handler) medicine(ctx context.Context, in MedicineInput) (MedicineOutput, error) {
	var form MedicineForm
	if in.PhotoDataURI != nil {
		form.SetPhoto(*in.PhotoDataURI)
	}
	if in.MedicineName != nil {
		form.SetName(*in.MedicineName)
	}
	return h.svc.MedicineInfo(ctx, form.Input(in.Language))
}

type generateReportsResponse struct {
	Reports []GeneratedReport `json:"reports"`
}

func (h *Handler) generateReports(ctx context.Context, in GenerateReportsInput) (generateReportsResponse, error) {
	reports, err := h.svc.GenerateReports(ctx, in)
	return generateReportsResponse{Reports: reports}, err
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/flows", func(r chi.Router) {
		r.Post("/symptoms", serve(h, "Symptom check failed", h.svc.CheckSymptoms))
		r.Post("/medicine", serve(h, "Medicine lookup failed", h.medicine))
		r.Post("/dosage", serve(h, "Dosage suggestion failed", h.svc.SuggestDosage))
		r.Post("/prescription", serve(h, "Prescription reading failed", h.svc.ReadPrescription))
		r.Post("/face", serve(h, "Face verification failed", h.svc.VerifyFace))
		r.Post("/reports", serve(h, "Report generation failed", h.generateReports))
		r.Post("/outbreaks", serve(h, "Outbreak summary failed", h.svc.SummarizeOutbreaks))
		r.Post("/translate", serve(h, "Translation failed", h.svc.Translate))
		r.Post("/transcribe", serve(h, "Transcription failed", h.svc.TranscribeAudio))
	})
}
