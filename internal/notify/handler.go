package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// OwnerFunc extracts the subscriber identity from a request.
type OwnerFunc func(r *http.Request) string

type Handler struct {
	registry  *Registry
	owner     OwnerFunc
	keepAlive time.Duration
}

func NewHandler(registry *Registry, owner OwnerFunc) *Handler {
	return &Handler{registry: registry, owner: owner, keepAlive: 25 * time.Second}
}

// Stream holds the connection open and writes every notification for the
// caller as an SSE event until the client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := h.registry.Subscribe(h.owner(r))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			data, _ := json.Marshal(n)
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.Level, data)
			flusher.Flush()
		}
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/notifications/stream", h.Stream)
}
