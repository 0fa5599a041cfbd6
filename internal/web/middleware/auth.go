package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/JonMunkholm/idlookup/internal/core"
	"github.com/JonMunkholm/idlookup/internal/logging"
)

// APIKeyHeader carries the caller's key.
const APIKeyHeader = "X-API-Key"

var (
	ErrMissingAPIKey = errors.New("missing api key")
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// DenyFunc writes the rejection for a request stopped by a middleware.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Privilege marks requests carrying one of keys in X-API-Key as privileged.
// It never rejects; RequirePrivileged does that for admin routes.
func Privilege(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key != "" && isValidAPIKey(key, keys) {
				r = r.WithContext(core.ContextWithPrivileged(r.Context(), true))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePrivileged rejects callers that Privilege did not mark: 401 when
// no key was sent, 403 when the key is not recognised.
func RequirePrivileged(deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if core.IsPrivileged(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			err := ErrInvalidAPIKey
			if r.Header.Get(APIKeyHeader) == "" {
				err = ErrMissingAPIKey
			}
			logging.FromContext(r.Context()).Warn("auth: privileged route refused",
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
				"reason", err.Error(),
			)
			deny(w, r, err)
		})
	}
}

// isValidAPIKey compares key against every configured key in constant time,
// so timing does not reveal which key (if any) matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
