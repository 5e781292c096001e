package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.status = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// instrument assigns a request ID, recovers panics, logs the request and
// reports it to metrics under the matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		req := r.WithContext(context.WithValue(r.Context(), requestIDKey, id))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.logger.ErrorCtx(req.Context(), "panic in handler", fmt.Errorf("%v", p),
					logger.Field{Key: "request_id", Value: id},
					logger.Field{Key: "path", Value: req.URL.Path},
					logger.Field{Key: "stack", Value: string(debug.Stack())})
				if !rec.written {
					writeError(rec, http.StatusInternalServerError, constants.MsgInternalError)
				}
			}

			route := req.Pattern
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			s.metrics.ObserveRequest(route, req.Method, rec.status, elapsed)
			s.logger.DebugCtx(req.Context(), "request completed",
				logger.Field{Key: "request_id", Value: id},
				logger.Field{Key: "method", Value: req.Method},
				logger.Field{Key: "path", Value: req.URL.Path},
				logger.Field{Key: "route", Value: route},
				logger.Field{Key: "status", Value: rec.status},
				logger.Field{Key: "duration_ms", Value: elapsed.Milliseconds()})
		}()

		next.ServeHTTP(rec, req)
	})
}
