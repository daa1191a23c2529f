// Package gate classifies page routes into access classes and enforces them
// ahead of the page handlers.
package gate

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/session"
)

// Class is the access class of a route.
type Class int

const (
	// ClassPublic routes render for everyone.
	ClassPublic Class = iota
	// ClassProtected routes require an authenticated principal.
	ClassProtected
	// ClassAuthOnly routes (sign-in, sign-up) only make sense for
	// anonymous visitors and bounce authenticated users to the dashboard.
	ClassAuthOnly
	// ClassRecovery routes are part of a credential-recovery flow and are
	// reachable regardless of session state.
	ClassRecovery
)

func (c Class) String() string {
	switch c {
	case ClassProtected:
		return "protected"
	case ClassAuthOnly:
		return "auth-only"
	case ClassRecovery:
		return "recovery"
	default:
		return "public"
	}
}

// Routes lists the path sets for each class. Entries match the exact path or
// any sub-path (entry plus a "/" segment boundary). Public is an explicit
// allow-list: it outranks Protected so open pages can live under an otherwise
// members-only prefix.
type Routes struct {
	Protected []string
	AuthOnly  []string
	Recovery  []string
	Public    []string
}

// DefaultRoutes mirrors the platform's page layout: the administrative areas
// sit under /picc, the auth pages are top-level, recovery spans the reset
// page plus the identity-provider callback endpoints, and a handful of /picc
// pages (knowledge base, media gallery and collections) are open to everyone.
func DefaultRoutes() Routes {
	return Routes{
		Protected: []string{
			"/picc/admin",
			"/picc/content-studio",
			"/picc/projects",
			"/picc/storytellers",
			"/picc/media/upload",
			"/picc/media/import",
			"/picc/reports",
			"/picc/settings",
			"/picc/team",
			"/picc/permissions",
			"/picc/dashboard",
		},
		AuthOnly: []string{"/login", "/signup", "/forgot-password"},
		Recovery: []string{"/reset-password", "/auth/callback", "/auth/confirm"},
		Public: []string{
			"/",
			"/about",
			"/stories",
			"/community",
			"/impact",
			"/share-voice",
			"/subscribe",
			"/wiki",
			"/annual-reports",
			"/picc/knowledge",
			"/picc/media/gallery",
			"/picc/media/collections",
		},
	}
}

// Classifier resolves a request path to its access class.
type Classifier struct {
	routes Routes
}

func NewClassifier(routes Routes) *Classifier {
	return &Classifier{routes: routes}
}

// Classify returns the access class for path. Recovery wins over the other
// classes so a recovery URL nested under a protected prefix stays reachable
// mid-flow, and the explicit Public list wins over Protected for the same
// reason. Paths matching no list are public.
func (c *Classifier) Classify(path string) Class {
	switch {
	case matchAny(path, c.routes.Recovery):
		return ClassRecovery
	case matchAny(path, c.routes.Public):
		return ClassPublic
	case matchAny(path, c.routes.Protected):
		return ClassProtected
	case matchAny(path, c.routes.AuthOnly):
		return ClassAuthOnly
	default:
		return ClassPublic
	}
}

func matchAny(path string, entries []string) bool {
	for _, e := range entries {
		if path == e || strings.HasPrefix(path, e+"/") {
			return true
		}
	}
	return false
}

// Guard enforces route classes before the page handlers run. It resolves the
// session once per request, attaches any rotated cookies to the response, and
// redirects according to the route class.
type Guard struct {
	classifier *Classifier
	resolver   *session.Resolver
	logger     zerolog.Logger
}

func NewGuard(classifier *Classifier, resolver *session.Resolver, logger zerolog.Logger) *Guard {
	return &Guard{
		classifier: classifier,
		resolver:   resolver,
		logger:     logger.With().Str("component", "gate").Logger(),
	}
}

// skippable paths are never gated: API routes carry their own auth and
// static assets are harmless.
func skippable(path string) bool {
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/static/") {
		return true
	}
	return strings.Contains(path, ".")
}

// Middleware wraps next with session resolution and access enforcement.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skippable(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		res := g.resolver.Resolve(r.Context(), r)
		// Rotated cookies ride along on every outcome, including redirects.
		for _, ck := range res.Cookies {
			http.SetCookie(w, ck)
		}

		class := g.classifier.Classify(r.URL.Path)
		switch class {
		case ClassProtected:
			if res.Principal == nil {
				target := "/login?redirect=" + url.QueryEscape(requestTarget(r))
				g.logger.Debug().Str("path", r.URL.Path).Msg("anonymous request to protected route")
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
		case ClassAuthOnly:
			if res.Principal != nil {
				http.Redirect(w, r, "/picc/dashboard", http.StatusSeeOther)
				return
			}
		case ClassRecovery, ClassPublic:
			// Reachable in any session state.
		}

		next.ServeHTTP(w, session.WithPrincipal(r, res.Principal))
	})
}

// requestTarget preserves the full original target, query included, so the
// user lands back exactly where they were headed after signing in.
func requestTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}
