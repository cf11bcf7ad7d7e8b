// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// ControlLimit limits session and sync commands (POST, PUT, DELETE) to
// perWindow per client IP. Reads and the event stream are never limited so
// status polling keeps working while a client is throttled.
func ControlLimit(perWindow int, window time.Duration) func(http.Handler) http.Handler {
	limiter := httprate.Limit(
		perWindow,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests(window)),
	)
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				limited.ServeHTTP(w, r)
			}
		})
	}
}

func tooManyRequests(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.Header().Set("Retry-After", retryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":   "rate_limited",
			"title":  "Too Many Requests",
			"status": http.StatusTooManyRequests,
			"detail": "too many control requests, retry after " + retryAfter + "s",
			"path":   r.URL.Path,
		})
	}
}
