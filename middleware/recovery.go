package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/danya/gymcrm/internal/shared"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Recoverer converts a panic in a downstream handler into the standard 500
// error body. http.ErrAbortHandler is re-raised so the server can drop the
// connection. Nothing is written if the handler already sent a status.
func Recoverer(responder *ErrorResponder, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))

				if ww.Status() != 0 {
					return
				}
				responder.Respond(ww, r, shared.Wrap(shared.ErrInternal, fmt.Errorf("panic: %v", rec)))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Timeout bounds the request context. When the deadline passes before the
// handler has written anything, the responder sends a 504.
func Timeout(timeout time.Duration, responder *ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
				responder.Respond(ww, r, shared.ErrRequestTimeout)
			}
		})
	}
}
