package session

import (
	"context"
	"net/http"

	"github.com/picc-digital/storyline/internal/model"
)

type contextKey struct{}

// WithPrincipal attaches the resolved principal to the request context.
// A nil principal is a no-op so anonymous requests carry no key.
func WithPrincipal(r *http.Request, p *model.Principal) *http.Request {
	if p == nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), contextKey{}, p))
}

// PrincipalFrom returns the principal stored on ctx, or nil for anonymous
// requests.
func PrincipalFrom(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(contextKey{}).(*model.Principal)
	return p
}
