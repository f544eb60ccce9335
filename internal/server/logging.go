package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// logWriter captures the status code and bytes written to the response.
type logWriter struct {
	http.ResponseWriter
	code, bytes int
}

var _ http.ResponseWriter = (*logWriter)(nil)

var _ http.Flusher = (*logWriter)(nil)

func (r *logWriter) Write(p []byte) (int, error) {
	written, err := r.ResponseWriter.Write(p)
	r.bytes += written
	return written, err
}

// WriteHeader is skipped for implicit 200 responses, so code starts at 200.
func (r *logWriter) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *logWriter) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func newLoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			writer := &logWriter{code: http.StatusOK, ResponseWriter: w}
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.String("addr", r.RemoteAddr))
			next.ServeHTTP(writer, r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.String("status", fmt.Sprintf("%d %s", writer.code, http.StatusText(writer.code))),
				zap.String("bytes", humanize.Bytes(uint64(writer.bytes))),
				zap.Duration("elapsed", time.Since(start)),
			}
			if writer.code >= http.StatusInternalServerError {
				log.Warn("response", fields...)
				return
			}
			log.Debug("response", fields...)
		})
	}
}
