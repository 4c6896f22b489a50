package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/awantoch/edgebridge/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Label values for the bridge metrics.
const (
	LimitContentLength = "content_length"
	LimitBodySize      = "body_size_limit"
	ReasonClose        = "close"
	ReasonError        = "error"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebridge_http_requests_total",
			Help: "Total number of HTTP requests received.",
		},
		[]string{"handler", "method", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgebridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
	requestBodyBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebridge_request_body_bytes_total",
		Help: "Request body bytes delivered to handlers.",
	})
	responseBodyBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgebridge_response_body_bytes_total",
		Help: "Response body bytes handed to the native sink.",
	})
	bodyLimitExceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebridge_request_body_too_large_total",
			Help: "Requests rejected with 413, by the limit that was hit.",
		},
		[]string{"limit"},
	)
	relayCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebridge_response_relay_cancelled_total",
			Help: "Response relays torn down before the body was fully sent.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		requestBodyBytes,
		responseBodyBytes,
		bodyLimitExceeded,
		relayCancelled,
	)
}

// Init sets up the tracer provider based on config.
// Supported exporters: "stdout" (default) and "otlp".
func Init(cfg *config.Config) error {
	serviceName := "edgebridge"
	if cfg.Tracing != nil && cfg.Tracing.ServiceName != "" {
		serviceName = cfg.Tracing.ServiceName
	}
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return err
	}

	var exp sdktrace.SpanExporter
	switch {
	case cfg.Tracing != nil && cfg.Tracing.Exporter == "otlp":
		opts := []otlptracehttp.Option{}
		if cfg.Tracing.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Tracing.Endpoint))
		}
		exp, err = otlptracehttp.New(context.Background(), opts...)
	default:
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return err
	}

	otel.SetTracerProvider(sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	))
	return nil
}

// WrapHandler applies tracing, Prometheus metrics, and otelhttp middleware.
func WrapHandler(name string, next http.Handler) http.Handler {
	h := otelhttp.NewHandler(next, name)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed bodies flushing through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// MetricsHandler returns the Prometheus metrics endpoint handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequestBody counts request body bytes enqueued for a handler.
func ObserveRequestBody(n int) {
	requestBodyBytes.Add(float64(n))
}

// ObserveResponseBody counts response body bytes written to a sink.
func ObserveResponseBody(n int) {
	responseBodyBytes.Add(float64(n))
}

// BodyTooLarge records a 413 caused by limit.
func BodyTooLarge(limit string) {
	bodyLimitExceeded.WithLabelValues(limit).Inc()
}

// RelayCancelled records a relay torn down for reason.
func RelayCancelled(reason string) {
	relayCancelled.WithLabelValues(reason).Inc()
}
