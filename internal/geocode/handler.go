package geocode

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"suraksha-jal/internal/platform/httpjson"
)

type Geocoder interface {
	Search(ctx context.Context, q string) ([]Place, error)
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}

type Handler struct {
	geo    Geocoder
	logger *slog.Logger
}

func NewHandler(geo Geocoder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{geo: geo, logger: logger}
}

type response struct {
	Results     []Place `json:"results"`
	ManualEntry bool    `json:"manual_entry"`
}

// manual tells the client to fall back to typing the address.
func (h *Handler) manual(w http.ResponseWriter, err error) {
	h.logger.Warn("geocoding unavailable", "err", err)
	httpjson.Write(w, http.StatusOK, response{Results: []Place{}, ManualEntry: true})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpjson.Error(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}
	places, err := h.geo.Search(r.Context(), q)
	if err != nil {
		h.manual(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, response{Results: places})
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		httpjson.Error(w, http.StatusBadRequest, "lat and lon must be valid coordinates")
		return
	}
	place, err := h.geo.Reverse(r.Context(), lat, lon)
	if err != nil {
		h.manual(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, response{Results: []Place{place}})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/geocode/search", h.Search)
	r.Get("/geocode/reverse", h.Reverse)
}
