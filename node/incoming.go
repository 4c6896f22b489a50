package node

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/awantoch/edgebridge/constants"
)

// IncomingRequest exposes a net/http request as an IncomingMessage. The
// body is read on its own goroutine, started by the first data subscriber,
// in chunks of at most chunkSize bytes.
type IncomingRequest struct {
	r         *http.Request
	chunkSize int

	mu        sync.Mutex
	cond      *sync.Cond
	started   bool
	paused    bool
	settled   bool
	destroyed bool
	onData    []func([]byte)
	onEnd     []func()
	onError   []func(error)
}

var _ IncomingMessage = (*IncomingRequest)(nil)

// NewIncomingRequest wraps r.
func NewIncomingRequest(r *http.Request, chunkSize int) *IncomingRequest {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	m := &IncomingRequest{r: r, chunkSize: chunkSize}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *IncomingRequest) Method() string { return m.r.Method }

func (m *IncomingRequest) URL() string {
	if m.r.RequestURI != "" {
		return m.r.RequestURI
	}
	return m.r.URL.RequestURI()
}

func (m *IncomingRequest) HTTPVersionMajor() int { return m.r.ProtoMajor }

// Header returns the request headers as they arrived on the wire. net/http
// moves the framing headers into dedicated fields, so they are put back.
func (m *IncomingRequest) Header() http.Header {
	h := m.r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get(constants.HeaderContentLength) == "" && m.r.ContentLength >= 0 && len(m.r.TransferEncoding) == 0 {
		h.Set(constants.HeaderContentLength, strconv.FormatInt(m.r.ContentLength, 10))
	}
	if len(m.r.TransferEncoding) > 0 && h.Get(constants.HeaderTransferEncoding) == "" {
		h.Set(constants.HeaderTransferEncoding, strings.Join(m.r.TransferEncoding, ", "))
	}
	return h
}

func (m *IncomingRequest) OnData(fn func(chunk []byte)) {
	m.mu.Lock()
	m.onData = append(m.onData, fn)
	start := !m.started && !m.destroyed
	m.started = true
	m.mu.Unlock()
	if start {
		go m.pump()
	}
}

func (m *IncomingRequest) OnEnd(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, fn)
}

func (m *IncomingRequest) OnError(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = append(m.onError, fn)
}

func (m *IncomingRequest) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

func (m *IncomingRequest) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.cond.Broadcast()
}

// Destroy stops the body pump and closes the body. A non-nil err is
// reported to error subscribers unless the body already ended.
func (m *IncomingRequest) Destroy(err error) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	emit := err != nil && !m.settled
	m.settled = true
	listeners := append([]func(error){}, m.onError...)
	m.cond.Broadcast()
	m.mu.Unlock()

	if body := m.r.Body; body != nil {
		// Close blocks behind an in-flight Read on server bodies.
		go body.Close()
	}
	if emit {
		for _, fn := range listeners {
			fn(err)
		}
	}
}

func (m *IncomingRequest) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

func (m *IncomingRequest) pump() {
	if m.r.Body == nil {
		m.finish(nil)
		return
	}
	buf := make([]byte, m.chunkSize)
	for {
		m.mu.Lock()
		for m.paused && !m.destroyed {
			m.cond.Wait()
		}
		stop := m.destroyed
		m.mu.Unlock()
		if stop {
			return
		}

		n, err := m.r.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			m.emitData(chunk)
		}
		if errors.Is(err, io.EOF) {
			m.finish(nil)
			return
		}
		if err != nil {
			m.finish(err)
			return
		}
	}
}

func (m *IncomingRequest) emitData(chunk []byte) {
	m.mu.Lock()
	if m.settled {
		m.mu.Unlock()
		return
	}
	listeners := append([]func([]byte){}, m.onData...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(chunk)
	}
}

// finish emits end, or error when err is set. Nothing is emitted once the
// message was destroyed.
func (m *IncomingRequest) finish(err error) {
	m.mu.Lock()
	if m.settled {
		m.mu.Unlock()
		return
	}
	m.settled = true
	ends := append([]func(){}, m.onEnd...)
	errs := append([]func(error){}, m.onError...)
	m.mu.Unlock()

	if err != nil {
		for _, fn := range errs {
			fn(err)
		}
		return
	}
	for _, fn := range ends {
		fn()
	}
}
