// Package session resolves the authenticated principal from request cookies
// and keeps sessions alive by rotating tokens that are close to expiry.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/config"
	"github.com/picc-digital/storyline/internal/model"
)

// sessionClaims is the token payload issued by the identity provider.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	AppMetadata struct {
		Roles []string `json:"roles"`
	} `json:"app_metadata"`
}

// TokenPair is the outcome of a refresh or code exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Result carries the resolved identity plus any rotated cookies the caller
// must attach to the response. A nil Principal means the request is anonymous;
// resolution never fails the request.
type Result struct {
	Principal *model.Principal
	Cookies   []*http.Cookie
}

// Resolver verifies access-token cookies and refreshes near-expiry sessions.
type Resolver struct {
	secret        []byte
	accessCookie  string
	refreshCookie string
	refreshWindow time.Duration
	secureCookies bool
	client        *resty.Client
	logger        zerolog.Logger

	// now is injectable for expiry-window tests.
	now func() time.Time
}

// NewResolver builds a Resolver from service configuration.
func NewResolver(cfg *config.Config, logger zerolog.Logger) *Resolver {
	c := resty.New().
		SetBaseURL(cfg.AuthBaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("apikey", cfg.AuthAnonKey).
		SetTimeout(10 * time.Second)

	return &Resolver{
		secret:        []byte(cfg.SessionSecret),
		accessCookie:  cfg.SessionCookieName,
		refreshCookie: cfg.RefreshCookieName,
		refreshWindow: cfg.SessionRefreshWindow,
		secureCookies: cfg.IsProduction(),
		client:        c,
		logger:        logger.With().Str("component", "session").Logger(),
		now:           time.Now,
	}
}

// Resolve inspects the request cookies and returns the principal, refreshing
// the token pair when the access token is inside the refresh window. Invalid,
// expired, or absent tokens all resolve to an anonymous Result; the caller
// decides what anonymity means for the route.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) Result {
	ck, err := req.Cookie(r.accessCookie)
	if err != nil || ck.Value == "" {
		return Result{}
	}

	claims, err := r.verify(ck.Value)
	if err != nil {
		// An expired access token can still be rotated if the refresh
		// cookie is present.
		if refreshed := r.tryRefresh(ctx, req); refreshed != nil {
			return *refreshed
		}
		r.logger.Debug().Err(err).Msg("session token rejected")
		return Result{}
	}

	res := Result{Principal: principalFrom(claims)}
	if exp := claims.ExpiresAt; exp != nil && exp.Time.Sub(r.now()) < r.refreshWindow {
		if refreshed := r.tryRefresh(ctx, req); refreshed != nil {
			return *refreshed
		}
		// Rotation failed but the current token is still valid; keep the
		// session going until it actually expires.
	}
	return res
}

func (r *Resolver) verify(token string) (*sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", model.ErrInvalidSession)
	}
	return &claims, nil
}

func principalFrom(claims *sessionClaims) *model.Principal {
	return &model.Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  claims.AppMetadata.Roles,
	}
}

func (r *Resolver) tryRefresh(ctx context.Context, req *http.Request) *Result {
	rc, err := req.Cookie(r.refreshCookie)
	if err != nil || rc.Value == "" {
		return nil
	}

	pair, err := r.refresh(ctx, rc.Value)
	if err != nil {
		r.logger.Debug().Err(err).Msg("session refresh failed")
		return nil
	}
	claims, err := r.verify(pair.AccessToken)
	if err != nil {
		r.logger.Warn().Err(err).Msg("refreshed token failed verification")
		return nil
	}
	return &Result{
		Principal: principalFrom(claims),
		Cookies:   r.SessionCookies(pair),
	}
}

func (r *Resolver) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		Post("/auth/v1/token")
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint returned %d", model.ErrInvalidSession, resp.StatusCode())
	}
	var pair TokenPair
	if err := json.Unmarshal(resp.Body(), &pair); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &pair, nil
}

// ExchangeCode swaps a one-time auth code (email confirmation, password
// recovery, OAuth callback) for a session token pair.
func (r *Resolver) ExchangeCode(ctx context.Context, code string) (*TokenPair, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty auth code", model.ErrValidation)
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "authorization_code").
		SetBody(map[string]string{"auth_code": code}).
		Post("/auth/v1/token")
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: code exchange returned %d", model.ErrInvalidSession, resp.StatusCode())
	}
	var pair TokenPair
	if err := json.Unmarshal(resp.Body(), &pair); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &pair, nil
}

// SessionCookies materializes a token pair as response cookies.
func (r *Resolver) SessionCookies(pair *TokenPair) []*http.Cookie {
	maxAge := pair.ExpiresIn
	if maxAge <= 0 {
		maxAge = 3600
	}
	return []*http.Cookie{
		{
			Name:     r.accessCookie,
			Value:    pair.AccessToken,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   r.secureCookies,
			SameSite: http.SameSiteLaxMode,
		},
		{
			Name:     r.refreshCookie,
			Value:    pair.RefreshToken,
			Path:     "/",
			MaxAge:   30 * 24 * 3600,
			HttpOnly: true,
			Secure:   r.secureCookies,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// ClearCookies expires both session cookies, used on sign-out.
func (r *Resolver) ClearCookies() []*http.Cookie {
	expire := func(name string) *http.Cookie {
		return &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   r.secureCookies,
			SameSite: http.SameSiteLaxMode,
		}
	}
	return []*http.Cookie{expire(r.accessCookie), expire(r.refreshCookie)}
}
