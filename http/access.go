package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/event"
	"github.com/awantoch/edgebridge/utils"
	"github.com/google/uuid"
)

// RequestCompleted is published on constants.TopicRequestCompleted once a
// response has been fully relayed or abandoned.
type RequestCompleted struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	Bytes      int64     `json:"bytes"`
	DurationMS float64   `json:"duration_ms"`
	Time       time.Time `json:"time"`
}

// withAccessEvents publishes a RequestCompleted for every request served by
// next. Requests without an id get one so the adapter and the event agree.
func withAccessEvents(bus event.EventBus, next http.Handler) http.Handler {
	if bus == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(constants.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(constants.HeaderRequestID, id)
		}
		start := time.Now()
		rec := &accessRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ev := RequestCompleted{
			ID:         id,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			Bytes:      rec.bytes,
			DurationMS: float64(time.Since(start).Microseconds()) / 1000,
			Time:       start.UTC(),
		}
		if err := bus.Publish(constants.TopicRequestCompleted, ev); err != nil {
			utils.Warn("publish %s: %v", constants.TopicRequestCompleted, err)
		}
	})
}

type accessRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *accessRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *accessRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

func (rec *accessRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *accessRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// logAccess writes one structured line per completed request.
func logAccess(payload []byte) {
	var ev RequestCompleted
	if err := json.Unmarshal(payload, &ev); err != nil {
		utils.Warn("malformed %s event: %v", constants.TopicRequestCompleted, err)
		return
	}
	ctx := utils.WithRequestID(context.Background(), ev.ID)
	utils.InfoCtx(ctx, "request completed",
		"method", ev.Method,
		"path", ev.Path,
		"status", ev.Status,
		"bytes", ev.Bytes,
		"duration_ms", ev.DurationMS,
	)
}
