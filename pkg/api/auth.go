// API authentication middleware — static bearer token.
//
// When gateway.api_key is non-empty, all API requests must carry
// "Authorization: Bearer <api_key>" or "X-API-Key: <api_key>". WebSocket
// upgrade requests may use the ?token= query param instead. /api/health is
// exempt so load balancers can probe without credentials.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/syncboard/syncboard/pkg/logger"
)

// authMiddleware wraps a handler with bearer token checking. An empty
// apiKey is a pass-through; NewServer auto-generates a key so this branch
// is not reached under normal operation.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		logger.WarnC("auth", "API auth DISABLED — auto-keygen failed")
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		// OPTIONS preflight — the CORS middleware answers it.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if !tokenValid(extractToken(r), apiKey) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="syncboard"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "unauthorized — bearer token required",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the bearer token from the Authorization header, the
// X-API-Key header, or the ?token= query param (for WebSocket upgrades).
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return ""
}

// tokenValid does a constant-time comparison to prevent timing attacks.
func tokenValid(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
