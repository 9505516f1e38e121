package api

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/ratelimit"
)

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelInfo
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// rateLimitByIP rejects callers that exceed limiter with 429. It runs after chi's
// RealIP middleware, so RemoteAddr already reflects forwarding headers.
func rateLimitByIP(api huma.API, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		ip := clientIP(ctx.RemoteAddr())
		if !limiter.Allow(ip) {
			logger.Warn("rate limit exceeded", "ip", ip, "path", ctx.URL().Path)
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "Too many requests. Please try again later.",
				domainerrors.RateLimited("Too many requests. Please try again later."))
			return
		}
		next(ctx)
	}
}

// clientIP strips the port from a remote address.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
