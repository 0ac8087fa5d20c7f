package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// instrument records latency and status per route pattern and logs API
// calls. Probe and scrape endpoints are only counted.
func instrument(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
			RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

			switch route {
			case "/metrics", "/health", "/ready":
				return
			}
			logger.Debug("http-request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
				zap.String("request-id", middleware.GetReqID(r.Context())))
		})
	}
}
