package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"charterhub/berth/pkg/apperr"
	"charterhub/berth/pkg/server/api"
)

// Recovery recovers from panics in HTTP handlers and returns a 500
// internal_error response. The panic is logged with its stack; nothing
// internal is exposed to the client. http.ErrAbortHandler is re-raised so
// the server can abort the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				api.WriteProblem(w, r, http.StatusInternalServerError,
					string(apperr.KindInternal), "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
