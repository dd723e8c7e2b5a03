package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// statusWriter records the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// HttpLog logs every request handled by next. Failed requests log at info,
// all others at debug.
func HttpLog(logger *zap.Logger, next http.Handler) http.HandlerFunc {
	logger = logger.Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		level := zap.DebugLevel
		if sw.status >= http.StatusBadRequest {
			level = zap.InfoLevel
		}
		if ce := logger.Check(level, "request"); ce != nil {
			ce.Write(
				zap.String("remote", r.RemoteAddr),
				zap.String("method", r.Method),
				zap.String("url", r.URL.String()),
				zap.Int("status", sw.status),
				zap.Int("bytes", sw.length),
				zap.String("user_agent", r.UserAgent()),
				zap.Duration("latency", time.Since(start)))
		}
	}
}
