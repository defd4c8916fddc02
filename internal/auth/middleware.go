package auth

import (
	"context"
	"net/http"
	"strings"

	"suraksha-jal/internal/platform/httpjson"
)

type contextKey struct{}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpjson.Error(w, http.StatusUnauthorized, "Please sign in to continue.")
			return
		}
		claims, err := p.Verify(token)
		if err != nil {
			httpjson.Error(w, http.StatusUnauthorized, MessageFor(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// EventSource cannot set headers.
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}

// Subject is the signed-in email, or "" for anonymous contexts.
func Subject(ctx context.Context) string {
	if c, ok := FromContext(ctx); ok {
		return c.Subject
	}
	return ""
}
