package gate

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picc-digital/storyline/internal/config"
	"github.com/picc-digital/storyline/internal/session"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultRoutes())

	cases := []struct {
		path string
		want Class
	}{
		{"/", ClassPublic},
		{"/stories", ClassPublic},
		{"/annual-reports", ClassPublic},
		{"/picc/dashboard", ClassProtected},
		{"/picc/admin/users", ClassProtected},
		{"/picc/media/upload", ClassProtected},
		{"/picc/knowledge", ClassPublic}, // open pages under /picc stay public
		{"/picc/knowledge/traditional-medicine", ClassPublic},
		{"/picc/media/gallery", ClassPublic},
		{"/picc/media/collections", ClassPublic},
		{"/piccadilly", ClassPublic}, // prefix match respects segment boundaries
		{"/login", ClassAuthOnly},
		{"/login/", ClassAuthOnly},
		{"/signup", ClassAuthOnly},
		{"/forgot-password", ClassAuthOnly},
		{"/reset-password", ClassRecovery},
		{"/auth/callback", ClassRecovery},
		{"/auth/confirm", ClassRecovery},
		{"/unknown/deeply/nested", ClassPublic},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(tc.path), "path %s", tc.path)
	}
}

func TestClassifyRecoveryWinsOverProtected(t *testing.T) {
	c := NewClassifier(Routes{
		Protected: []string{"/picc"},
		Recovery:  []string{"/picc/reset"},
	})
	assert.Equal(t, ClassRecovery, c.Classify("/picc/reset"))
	assert.Equal(t, ClassProtected, c.Classify("/picc/other"))
}

func TestClassifyPublicWinsOverProtected(t *testing.T) {
	c := NewClassifier(Routes{
		Protected: []string{"/picc"},
		Public:    []string{"/picc/knowledge"},
	})
	assert.Equal(t, ClassPublic, c.Classify("/picc/knowledge"))
	assert.Equal(t, ClassPublic, c.Classify("/picc/knowledge/bush-foods"))
	assert.Equal(t, ClassProtected, c.Classify("/picc/dashboard"))
}

const gateTestSecret = "gate-test-secret"

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	cfg := config.NewForTesting()
	cfg.SessionSecret = gateTestSecret
	resolver := session.NewResolver(cfg, zerolog.Nop())
	return NewGuard(NewClassifier(DefaultRoutes()), resolver, zerolog.Nop())
}

func sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user-1@example.org",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(gateTestSecret))
	require.NoError(t, err)
	return &http.Cookie{Name: "sl-access-token", Value: signed}
}

func serve(g *Guard, req *http.Request) (*httptest.ResponseRecorder, bool) {
	var reachedNext bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reachedNext = true
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rec, req)
	return rec, reachedNext
}

func TestGuardRedirectsAnonymousFromProtected(t *testing.T) {
	g := newTestGuard(t)

	req := httptest.NewRequest(http.MethodGet, "/picc/reports?page=2&sort=recent", nil)
	rec, reached := serve(g, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fpicc%2Freports%3Fpage%3D2%26sort%3Drecent", rec.Header().Get("Location"))
}

func TestGuardServesOpenPiccPagesToAnonymous(t *testing.T) {
	g := newTestGuard(t)

	for _, path := range []string{"/picc/knowledge", "/picc/media/gallery", "/picc/media/collections"} {
		rec, reached := serve(g, httptest.NewRequest(http.MethodGet, path, nil))
		assert.True(t, reached, "path %s should be served anonymously", path)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestGuardAllowsAuthenticatedIntoProtected(t *testing.T) {
	g := newTestGuard(t)

	req := httptest.NewRequest(http.MethodGet, "/picc/dashboard", nil)
	req.AddCookie(sessionCookie(t))
	rec, reached := serve(g, req)

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardBouncesAuthenticatedFromAuthOnly(t *testing.T) {
	g := newTestGuard(t)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(sessionCookie(t))
	rec, reached := serve(g, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/picc/dashboard", rec.Header().Get("Location"))
}

func TestGuardRecoveryReachableInAnyState(t *testing.T) {
	g := newTestGuard(t)

	// Anonymous.
	_, reached := serve(g, httptest.NewRequest(http.MethodGet, "/reset-password", nil))
	assert.True(t, reached)

	// Authenticated.
	req := httptest.NewRequest(http.MethodGet, "/reset-password", nil)
	req.AddCookie(sessionCookie(t))
	_, reached = serve(g, req)
	assert.True(t, reached)
}

func TestGuardSkipsAPIAndStatic(t *testing.T) {
	g := newTestGuard(t)

	for _, path := range []string{"/api/stories", "/static/app.css", "/favicon.ico"} {
		_, reached := serve(g, httptest.NewRequest(http.MethodGet, path, nil))
		assert.True(t, reached, "path %s should bypass the gate", path)
	}
}

func TestGuardAttachesPrincipalToContext(t *testing.T) {
	g := newTestGuard(t)

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := session.PrincipalFrom(r.Context()); p != nil {
			got = p.UserID
		}
	})
	req := httptest.NewRequest(http.MethodGet, "/picc/dashboard", nil)
	req.AddCookie(sessionCookie(t))
	g.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-1", got)
}

func TestGuardPublicAnonymousPasses(t *testing.T) {
	g := newTestGuard(t)
	rec, reached := serve(g, httptest.NewRequest(http.MethodGet, "/stories", nil))
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}
