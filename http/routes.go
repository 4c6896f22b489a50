package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/event"
	"github.com/awantoch/edgebridge/utils"
	"github.com/awantoch/edgebridge/vercel"
)

// Route answers a matched request through ev.
type Route func(ctx context.Context, ev *vercel.RequestEvent) error

// Router dispatches request events by method and exact path. It implements
// vercel.Handler; unmatched requests are reported as not handled.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Route
}

var _ vercel.Handler = (*Router)(nil)

// NewRouter returns a router with the built-in routes registered. GET
// /events is only mounted when bus is non-nil.
func NewRouter(bus event.EventBus) *Router {
	rt := &Router{routes: map[string]Route{}}
	rt.HandleFunc(http.MethodGet, "/healthz", healthHandler)
	rt.HandleFunc(http.MethodPost, "/echo", echoHandler)
	rt.HandleFunc(http.MethodGet, "/client", clientHandler)
	if bus != nil {
		rt.HandleFunc(http.MethodGet, "/events", eventsHandler(bus))
	}
	return rt
}

// HandleFunc registers fn for method and path, replacing any earlier route.
func (rt *Router) HandleFunc(method, path string, fn Route) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.routes[method+" "+path] = fn
}

func (rt *Router) Handle(ctx context.Context, ev *vercel.RequestEvent) (bool, error) {
	rt.mu.RLock()
	fn, ok := rt.routes[ev.Request.Method+" "+ev.URL.Path]
	rt.mu.RUnlock()
	if !ok {
		return false, nil
	}
	err := fn(ctx, ev)
	if err == nil && !ev.Resolved() {
		utils.WarnCtx(ctx, "route returned without a response", "method", ev.Request.Method, "path", ev.URL.Path)
	}
	return true, err
}

// GET /healthz
func healthHandler(ctx context.Context, ev *vercel.RequestEvent) error {
	return writeRaw(ev, http.StatusOK, constants.ContentTypeJSON, []byte(constants.HealthCheckResponse))
}

// POST /echo streams the request body back as it arrives.
func echoHandler(ctx context.Context, ev *vercel.RequestEvent) error {
	h := http.Header{}
	if ct := ev.Request.Header.Get(constants.HeaderContentType); ct != "" {
		h.Set(constants.HeaderContentType, ct)
	}
	hr, err := ev.Request.HTTPRequest()
	if err != nil {
		return err
	}
	defer hr.Body.Close()
	w := ev.GetWritableStream(http.StatusOK, h)
	if _, err := io.Copy(w, hr.Body); err != nil {
		return err
	}
	return w.Close()
}

// GET /events streams completed requests as newline-delimited JSON until
// the client goes away or ?limit=N events have been sent.
func eventsHandler(bus event.EventBus) Route {
	return func(ctx context.Context, ev *vercel.RequestEvent) error {
		limit := 0
		if v := ev.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return writeRaw(ev, http.StatusBadRequest, constants.ContentTypeText, []byte(fmt.Sprintf("invalid limit %q", v)))
			}
			limit = n
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		lines := make(chan []byte, 16)
		err := bus.Subscribe(ctx, constants.TopicRequestCompleted, func(p []byte) {
			select {
			case lines <- p:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return err
		}

		h := http.Header{}
		h.Set(constants.HeaderContentType, constants.ContentTypeNDJSON)
		w := ev.GetWritableStream(http.StatusOK, h)
		for sent := 0; limit == 0 || sent < limit; sent++ {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case p := <-lines:
				line := append(append(make([]byte, 0, len(p)+1), p...), '\n')
				if _, err := w.Write(line); err != nil {
					// The reader cancelled; nothing left to deliver to.
					return nil
				}
			}
		}
		return w.Close()
	}
}

type clientResponse struct {
	ID       string            `json:"id"`
	Client   vercel.ClientConn `json:"client"`
	Platform vercel.Platform   `json:"platform"`
}

// GET /client
func clientHandler(ctx context.Context, ev *vercel.RequestEvent) error {
	return writeJSON(ev, http.StatusOK, clientResponse{
		ID:       ev.ID,
		Client:   ev.ClientConn(),
		Platform: ev.Platform,
	})
}

func writeJSON(ev *vercel.RequestEvent, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeRaw(ev, status, constants.ContentTypeJSON, b)
}

func writeRaw(ev *vercel.RequestEvent, status int, contentType string, b []byte) error {
	h := http.Header{}
	h.Set(constants.HeaderContentType, contentType)
	w := ev.GetWritableStream(status, h)
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.Close()
}
