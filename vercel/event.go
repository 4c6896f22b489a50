package vercel

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/stream"
	"github.com/awantoch/edgebridge/web"
)

// ErrResponseResolved is returned by writes to a second writable stream
// obtained from the same RequestEvent.
var ErrResponseResolved = errors.New("vercel: response already resolved")

// ClientConn describes the client as seen by the Vercel edge network.
type ClientConn struct {
	IP        string   `json:"ip,omitempty"`
	Country   string   `json:"country,omitempty"`
	Region    string   `json:"region,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Platform identifies the deployment the request is served from.
type Platform struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
	Env    string `json:"env,omitempty"`
}

// RequestEvent is what a Handler sees for one request.
type RequestEvent struct {
	Mode     string
	ID       string
	URL      *url.URL
	Request  *web.Request
	Env      Env
	Platform Platform

	highWaterMark int
	resolve       func(*web.Response)

	mu       sync.Mutex
	resolved bool
	writer   *stream.PipeWriter
}

// GetWritableStream resolves the response with status and header and
// returns the writer for its body. Writes block while the client is not
// keeping up. Only the first call resolves; later writers fail with
// ErrResponseResolved. Closing the writer ends the body.
func (ev *RequestEvent) GetWritableStream(status int, header http.Header) io.WriteCloser {
	body, w := stream.NewPipe(
		stream.WithHighWaterMark(ev.highWaterMark),
		stream.WithSize(stream.ByteLength),
	)

	ev.mu.Lock()
	if ev.resolved {
		ev.mu.Unlock()
		_ = w.CloseWithError(ErrResponseResolved)
		return w
	}
	ev.resolved = true
	ev.writer = w
	ev.mu.Unlock()

	ev.resolve(web.NewResponse(status, header.Clone(), body))
	return w
}

// Resolved reports whether GetWritableStream was called.
func (ev *RequestEvent) Resolved() bool {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.resolved
}

// ClientConn reads the client address and geolocation headers.
func (ev *RequestEvent) ClientConn() ClientConn {
	h := ev.Request.Header
	return ClientConn{
		IP:        h.Get(constants.HeaderVercelIP),
		Country:   h.Get(constants.HeaderVercelCountry),
		Region:    h.Get(constants.HeaderVercelRegion),
		City:      decodeCity(h.Get(constants.HeaderVercelCity)),
		Latitude:  parseCoord(h.Get(constants.HeaderVercelLatitude)),
		Longitude: parseCoord(h.Get(constants.HeaderVercelLongitude)),
	}
}

// finish ends the body once the handler returned. err, if any, errors the
// body so the relay tears the response down.
func (ev *RequestEvent) finish(err error) {
	ev.mu.Lock()
	w := ev.writer
	ev.mu.Unlock()
	if w != nil {
		_ = w.CloseWithError(err)
	}
}

// Vercel percent-encodes the city name.
func decodeCity(v string) string {
	if s, err := url.QueryUnescape(v); err == nil {
		return s
	}
	return v
}

func parseCoord(v string) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
