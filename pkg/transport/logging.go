package transport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// credentialPaths are route prefixes whose remaining path is a credential,
// such as a password reset token.
var credentialPaths = []string{"/auth/verify-reset/"}

// LogPath returns r's path for logging, with credential segments masked.
func LogPath(r *http.Request) string {
	p := r.URL.Path
	for _, prefix := range credentialPaths {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
			return prefix + "***"
		}
	}
	return p
}

// Logging returns middleware that emits one structured log entry per
// request with method, path, status, duration, and request id. Server
// errors log at error level, client errors at warn, everything else at info.
//
// Place it inside RequestID so the id is available.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", LogPath(r)),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}
