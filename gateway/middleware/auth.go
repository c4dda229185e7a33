package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"nftstake/crypto"
)

// ScopeOperator grants access to operator-only diagnostics.
const ScopeOperator = "operator"

type AuthConfig struct {
	Enabled    bool
	HMACSecret []byte
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
	// OptionalPaths are served without a token; a valid token still resolves
	// the caller when present.
	OptionalPaths []string
}

type contextKey string

const (
	ContextKeyCaller contextKey = "stakingd.caller"
	ContextKeyScopes contextKey = "stakingd.scopes"
)

// CallerFromContext returns the authenticated identity, if any.
func CallerFromContext(ctx context.Context) (crypto.Address, bool) {
	addr, ok := ctx.Value(ContextKeyCaller).(crypto.Address)
	return addr, ok
}

// ScopesFromContext returns the scopes granted by the caller's token.
func ScopesFromContext(ctx context.Context) []string {
	scopes, _ := ctx.Value(ContextKeyScopes).([]string)
	return scopes
}

// WithCaller attaches an identity to ctx. Tests and in-process callers use it
// to bypass token parsing.
func WithCaller(ctx context.Context, caller crypto.Address, scopes ...string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyCaller, caller)
	return context.WithValue(ctx, ContextKeyScopes, scopes)
}

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger}
}

// Middleware resolves the caller identity from the bearer token subject.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				if a.isOptional(r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			caller, scopes, err := a.Verify(tokenString)
			if err != nil {
				a.logger.Warn("auth: token rejected", "path", r.URL.Path, "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if len(requiredScopes) > 0 && !hasScopes(scopes, requiredScopes) {
				writeAuthError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller, scopes...)))
		})
	}
}

// Verify parses the token and returns the subject identity and scopes.
func (a *Authenticator) Verify(tokenString string) (crypto.Address, []string, error) {
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return crypto.Address{}, nil, err
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return crypto.Address{}, nil, errors.New("subject missing")
	}
	caller, err := crypto.ParseAddress(subject)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	if caller.IsZero() {
		return crypto.Address{}, nil, errors.New("zero subject")
	}
	return caller, extractScopes(claims, a.cfg.ScopeClaim), nil
}

func (a *Authenticator) isOptional(path string) bool {
	for _, prefix := range a.cfg.OptionalPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.cfg.HMACSecret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.cfg.HMACSecret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience mismatch")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"code":"Unauthorized","error":"` + msg + `"}`))
}
