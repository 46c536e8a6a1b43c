package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger is the zap counterpart of chi's middleware.Logger: one line per
// request with status, size and latency, tagged with the request ID.
func RequestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				fields := []interface{}{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"took", time.Since(start).String(),
					"remote", r.RemoteAddr,
					"requestID", middleware.GetReqID(r.Context()),
				}
				if status >= http.StatusInternalServerError {
					logger.Warnw("Request failed", fields...)
					return
				}
				logger.Infow("Request served", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
