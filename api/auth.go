package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// A TokenIssuer signs and verifies the bearer tokens the front ends carry.
type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
}

// Issue returns a signed token for the given username.
func (t *TokenIssuer) Issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(t.TTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Verify checks the token signature and expiry and returns the subject.
func (t *TokenIssuer) Verify(token string) (string, error) {
	tok, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return t.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

type ctxKey int

const userKey ctxKey = iota

// requireAuth wraps a handler with bearer-token verification and puts the
// username in the request context.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			a.respondError(w, http.StatusUnauthorized, errors.New("missing bearer token"), "Authentication required")
			return
		}
		username, err := a.Tokens.Verify(token)
		if err != nil {
			a.respondError(w, http.StatusUnauthorized, err, "Invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, username)))
	}
}

// usernameFrom returns the authenticated username stored by requireAuth.
func usernameFrom(r *http.Request) string {
	username, _ := r.Context().Value(userKey).(string)
	return username
}
