package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// probe reports whether path is polled by a supervisor or scraper. Successful
// probes are logged at debug level only.
func probe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

type recorder struct {
	http.ResponseWriter
	status int
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the operator endpoints. Each request gets a server
// span, continuing a W3C traceparent when the caller sent one, an
// X-Correlation-ID response header, a [Metrics.HTTPRequestDuration] sample
// and a log line.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	var tc propagation.TraceContext
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			method, path := r.Method, r.URL.Path

			ctx := tc.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := start(ctx, "HTTP "+method+" "+path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(semconv.HTTPRequestMethodKey.String(method), semconv.URLPath(path)),
			)
			defer span.End()

			id := CorrelationID(ctx)
			if id != "" {
				w.Header().Set("X-Correlation-ID", id)
			}
			tc.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rw := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))
			took := time.Since(began)

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))
			m.HTTPRequestDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			))

			level := slog.LevelInfo
			if probe(path) && rw.status < http.StatusBadRequest {
				level = slog.LevelDebug
			}
			slog.Log(ctx, level, "http request",
				"trace_id", id, "method", method, "path", path,
				"status", rw.status, "duration", took)
		})
	}
}
