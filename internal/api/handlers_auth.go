package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/session"
)

type AuthHandler struct {
	resolver *session.Resolver
	logger   zerolog.Logger
}

func NewAuthHandler(resolver *session.Resolver, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{resolver: resolver, logger: logger.With().Str("component", "auth").Logger()}
}

// Callback GET /auth/callback
// The identity provider redirects here with a one-time code. The code is
// exchanged for a session, cookies are set, and the user lands on:
//   - /reset-password when the flow is a password recovery,
//   - the validated `next` target when one is given,
//   - /picc/dashboard otherwise.
// Failures redirect to /login with the error message in the query string.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errMsg := q.Get("error_description"); errMsg != "" {
		h.redirectError(w, r, errMsg)
		return
	}
	if errMsg := q.Get("error"); errMsg != "" {
		h.redirectError(w, r, errMsg)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, "missing auth code")
		return
	}

	pair, err := h.resolver.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Warn().Err(err).Msg("auth code exchange failed")
		h.redirectError(w, r, "could not complete sign-in")
		return
	}
	for _, ck := range h.resolver.SessionCookies(pair) {
		http.SetCookie(w, ck)
	}

	target := "/picc/dashboard"
	if q.Get("type") == "recovery" {
		target = "/reset-password"
	} else if next := q.Get("next"); isSafeTarget(next) {
		target = next
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

// isSafeTarget accepts only same-site absolute paths, rejecting external and
// protocol-relative URLs.
func isSafeTarget(next string) bool {
	return next != "" && strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//")
}
