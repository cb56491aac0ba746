package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type ctxKey int

const userIDKey ctxKey = iota

var errUnauthenticated = errors.New("missing or invalid bearer token")

// bearerAuth accepts an HS256 token whose subject is the numeric user id. The
// token is read from the Authorization header, or from the access_token query
// parameter since browsers cannot set headers on websocket requests.
func bearerAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(r, secret)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, secret []byte) (uint, error) {
	raw := r.URL.Query().Get("access_token")
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return 0, errUnauthenticated
		}
		raw = token
	}
	if raw == "" {
		return 0, errUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, errors.Wrap(errUnauthenticated, err.Error())
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Wrap(errUnauthenticated, "subject is not a user id")
	}
	return uint(id), nil
}

func userID(r *http.Request) uint {
	id, _ := r.Context().Value(userIDKey).(uint)
	return id
}

// IssueToken signs a token for userID. Used by tests and local tooling.
func IssueToken(secret []byte, userID uint) (string, error) {
	claims := jwt.RegisteredClaims{Subject: strconv.FormatUint(uint64(userID), 10)}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
