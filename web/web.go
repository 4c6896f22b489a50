// Package web holds the platform-neutral request and response values that
// the adapters translate to and from.
package web

import (
	"context"
	"net/http"
	"net/url"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/stream"
)

// Request is an immutable standard request. Body is nil when the request
// carries no payload.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   *stream.ReadableStream

	ctx context.Context
}

// NewRequest builds a Request bound to ctx.
func NewRequest(ctx context.Context, method string, u *url.URL, header http.Header, body *stream.ReadableStream) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	if header == nil {
		header = http.Header{}
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{Method: method, URL: u, Header: header, Body: body, ctx: ctx}
}

// Context returns the request context.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r bound to ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// HTTPRequest converts r into a net/http request whose body reads from the
// standard body stream. It locks the body.
func (r *Request) HTTPRequest() (*http.Request, error) {
	hr, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	hr.Header = r.Header.Clone()
	hr.Host = r.URL.Host
	hr.RequestURI = r.URL.RequestURI()
	if r.Body != nil {
		rc, err := stream.NewReadCloser(r.Context(), r.Body)
		if err != nil {
			return nil, err
		}
		hr.Body = rc
		hr.ContentLength = -1
	}
	return hr, nil
}

// Response is a standard response. Its Body may be read at most once.
type Response struct {
	Status int
	Header http.Header
	Body   *stream.ReadableStream
}

// NewResponse builds a Response; a zero status means 200.
func NewResponse(status int, header http.Header, body *stream.ReadableStream) *Response {
	if status == 0 {
		status = http.StatusOK
	}
	if header == nil {
		header = http.Header{}
	}
	return &Response{Status: status, Header: header, Body: body}
}

// TextResponse builds a response with a fixed body and content type.
func TextResponse(status int, contentType, body string) *Response {
	h := http.Header{}
	h.Set(constants.HeaderContentType, contentType)
	return NewResponse(status, h, stream.FromBytes([]byte(body)))
}

// Locked reports whether the body was already handed to a reader.
func (r *Response) Locked() bool {
	return r.Body != nil && r.Body.Locked()
}

// Text reads the whole body. The body stays locked afterwards.
func (r *Response) Text(ctx context.Context) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	if r.Locked() {
		return "", ErrBodyLocked
	}
	b, err := stream.ReadAll(ctx, r.Body)
	return string(b), err
}

// Handler produces a standard response for a standard request.
type Handler interface {
	ServeWeb(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f HandlerFunc) ServeWeb(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
