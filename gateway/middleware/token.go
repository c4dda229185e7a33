package middleware

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"nftstake/crypto"
)

// TokenIssuer mints HS256 bearer tokens whose subject is the caller address.
type TokenIssuer struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Issue signs a token for subject valid from now for the issuer TTL.
func (t TokenIssuer) Issue(subject crypto.Address, now time.Time, scopes ...string) (string, time.Time, error) {
	if len(t.Secret) == 0 {
		return "", time.Time{}, errors.New("token secret not configured")
	}
	if subject.IsZero() {
		return "", time.Time{}, errors.New("token subject must not be zero")
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	expires := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": subject.String(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": expires.Unix(),
		"jti": uuid.NewString(),
	}
	if t.Issuer != "" {
		claims["iss"] = t.Issuer
	}
	if t.Audience != "" {
		claims["aud"] = t.Audience
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}
