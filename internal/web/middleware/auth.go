package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/listings/internal/auth"
	"github.com/JonMunkholm/listings/internal/core"
)

// BearerAuth returns middleware that verifies the Authorization bearer token
// and stores the caller id and client IP in the request context.
// Missing or invalid tokens get 401; authorization is decided later.
func BearerAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID, err := verifier.VerifyHeader(r.Header.Get("Authorization"))
			if err == nil {
				recordCaller(r.Context(), callerID)
				ctx := core.ContextWithCaller(r.Context(), callerID)
				ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			code := "AUTH002"
			if errors.Is(err, auth.ErrMissingToken) {
				code = "AUTH003"
			}
			slog.Warn("auth: rejected bearer token",
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="listings"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "authentication required",
				"message": "A valid bearer token is required",
				"code":    code,
			})
		})
	}
}
