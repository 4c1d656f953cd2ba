package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type callerKey struct{}

// CallerID returns the authenticated user set by Identity.Middleware.
func CallerID(ctx context.Context) string {
	s, _ := ctx.Value(callerKey{}).(string)
	return s
}

// Identity resolves the caller of an /api request. With a Secret the caller
// is the sub claim of an HS256 bearer token; without one the X-User-ID header
// from the gateway is trusted.
type Identity struct {
	Secret []byte
}

func (id Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := id.caller(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (id Identity) caller(r *http.Request) (string, error) {
	if len(id.Secret) == 0 {
		v := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if v == "" {
			return "", errors.New("missing X-User-ID header")
		}
		return v, nil
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("missing bearer token")
	}
	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return id.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// AdminOnly guards operator routes with a shared token. An empty token
// disables the check.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := r.Header.Get("X-Admin-Token")
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
