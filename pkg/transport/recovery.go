package transport

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/digsite/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The server continues to
// accept new requests after a panic is recovered.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					slog.Error("panic recovered",
						"request_id", RequestIDFromContext(r.Context()),
						"path", LogPath(r),
						"panic", v,
					)
					WriteAPIError(w, api.NewServerError())
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
