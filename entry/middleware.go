package entry

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Middleware injects HTTP response handler logic to facilitate tracing and logging:
// every incoming request will receive an X-Request-Id header (accessible via
// RequestId) and a customized slog.Logger instance (accessible via Logger), and all
// requests will be logged
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Generate a unique ID for this request, if it doesn't already have one
			requestId := r.Header.Get("x-request-id")
			if requestId == "" {
				requestId = uuid.NewString()
			}

			// Prepare a logger with the relevant details of this request
			reqLogger := logger.With(
				"requestId", requestId,
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr,
			)
			reqLogger.Debug("Handling request")

			ctx := newContext(r.Context(), requestId, reqLogger)
			r = r.WithContext(ctx)

			// Preemptively set the X-Request-Id response header, so that the request ID
			// will be carried end-to-end
			w.Header().Set("x-request-id", requestId)

			sw := NewStatusWriter(w)

			start := time.Now()
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			// Server errors are logged at error level; auth and validation failures are
			// expected traffic
			level := slog.LevelError
			if status := sw.Status(); status >= 100 && status <= 499 {
				level = slog.LevelInfo
			}
			Logger(ctx).Log(ctx, level,
				"Request finished",
				"elapsedMilliseconds", float64(elapsed.Nanoseconds())/float64(time.Millisecond),
				"status", sw.Status(),
			)
		})
	}
}

// StatusWriter wraps an http.ResponseWriter in order to intercept and store the HTTP
// status code for the response to a request
type StatusWriter struct {
	http.ResponseWriter
	status int
}

func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w}
}

// Status returns the status code sent so far, or 0 if nothing has been written
func (w *StatusWriter) Status() int {
	return w.status
}

func (w *StatusWriter) Write(data []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(data)
}

func (w *StatusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *StatusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *StatusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
