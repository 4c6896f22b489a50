// Package node bridges event-driven server request/response objects to the
// standard web values: request bodies become pull-based streams with a size
// policy, and response body streams are relayed into the native sink with
// backpressure and bilateral cancellation.
package node

import (
	"errors"
	"net/http"
)

// ErrInvalidHeader is returned by ServerResponse.SetHeader for names or
// values that cannot be sent.
var ErrInvalidHeader = errors.New("invalid header")

// ErrHeadersSent is returned by ServerResponse.SetHeader once the status
// line has gone out.
var ErrHeadersSent = errors.New("headers already sent")

// IncomingMessage is a native inbound request whose body arrives as push
// events. Once end or error fired, no further events are delivered.
type IncomingMessage interface {
	Method() string
	// URL is the raw path and query.
	URL() string
	Header() http.Header
	HTTPVersionMajor() int

	// OnData subscribes to body chunks. The first subscription starts the
	// flow of data.
	OnData(fn func(chunk []byte))
	OnEnd(fn func())
	OnError(fn func(err error))

	Pause()
	Resume()
	// Destroy stops the body and releases it. A non-nil err is reported to
	// error subscribers.
	Destroy(err error)
	Destroyed() bool
}

// ServerResponse is a native outbound response with a bounded internal
// buffer. Event callbacks are never invoked synchronously from within the
// subscribing call.
type ServerResponse interface {
	SetHeader(name string, values []string) error
	HeaderNames() []string
	RemoveHeader(name string)
	WriteHead(status int)

	// Write buffers chunk and reports false once the buffer is full; the
	// caller should wait for drain before writing more.
	Write(chunk []byte) bool
	// End flushes chunk, if any, and finishes the response.
	End(chunk []byte)

	Destroy(err error)
	Destroyed() bool

	// OnClose and OnError return a function that unsubscribes fn.
	OnClose(fn func()) (off func())
	OnError(fn func(err error)) (off func())
	// OnceDrain runs fn once after the buffer empties. fn runs right away
	// when no write is waiting to drain. The returned function withdraws fn.
	OnceDrain(fn func()) (off func())
}
