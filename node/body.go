package node

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/stream"
	"github.com/awantoch/edgebridge/telemetry"
	"github.com/awantoch/edgebridge/web"
)

type bodyPhase int

const (
	phaseIdle bodyPhase = iota
	phaseStreaming
	phaseClosed
	phaseErrored
	phaseCancelled
)

func (p bodyPhase) terminal() bool { return p >= phaseClosed }

// bodyState is the per-request state shared by the stream callbacks.
type bodyState struct {
	msg IncomingMessage
	// limit is the byte cap, or -1 when the body is uncapped.
	limit int64
	// fromContentLength reports whether limit came from the declared
	// content-length rather than the configured size limit.
	fromContentLength bool

	mu    sync.Mutex
	phase bodyPhase
	size  int64

	// flow serialises the pause decision in onData against pull's Resume.
	// The consumer may drain the queue between the desired-size check and
	// Pause; holding flow makes its Resume land after that Pause.
	flow sync.Mutex
}

// RequestBody turns the body of msg into a pull-based stream. It returns a
// nil stream when the request carries no body. sizeLimit caps the body in
// bytes; 0 leaves only the declared content-length as a cap. A declared
// length above sizeLimit fails right away with a 413 *web.HTTPError.
func RequestBody(msg IncomingMessage, sizeLimit int64) (*stream.ReadableStream, error) {
	h := msg.Header()
	if h.Get(constants.HeaderContentType) == "" {
		return nil, nil
	}

	declared, known := parseContentLength(h.Get(constants.HeaderContentLength))
	if !known && msg.HTTPVersionMajor() <= 1 && h.Get(constants.HeaderTransferEncoding) == "" {
		return nil, nil
	}
	if known && declared == 0 {
		return nil, nil
	}

	st := &bodyState{msg: msg, limit: -1}
	if known {
		st.limit = declared
		st.fromContentLength = true
	}
	if sizeLimit > 0 {
		if !known {
			st.limit = sizeLimit
		} else if declared > sizeLimit {
			telemetry.BodyTooLarge(telemetry.LimitContentLength)
			return nil, web.Errorf(http.StatusRequestEntityTooLarge, constants.MsgContentLengthTooLarge, declared, sizeLimit)
		}
	}

	if msg.Destroyed() {
		s := stream.NewReadableStream(stream.Source{})
		_ = s.Cancel(nil)
		return s, nil
	}

	return stream.NewReadableStream(stream.Source{
		Start:  st.start,
		Pull:   st.pull,
		Cancel: st.cancel,
	}), nil
}

// parseContentLength reports the declared length and whether it is usable.
// Empty, malformed and negative values count as unknown.
func parseContentLength(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// settle moves a streaming body into a terminal phase. It reports false if
// the body had already settled, in which case the event is suppressed.
func (st *bodyState) settle(p bodyPhase) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.phase.terminal() {
		return false
	}
	st.phase = p
	return true
}

func (st *bodyState) start(c *stream.Controller) error {
	st.mu.Lock()
	st.phase = phaseStreaming
	st.mu.Unlock()

	st.msg.OnError(func(err error) {
		if st.settle(phaseErrored) {
			c.Error(err)
		}
	})
	st.msg.OnEnd(func() {
		if st.settle(phaseClosed) {
			_ = c.Close()
		}
	})
	st.msg.OnData(func(chunk []byte) { st.onData(c, chunk) })
	return nil
}

func (st *bodyState) onData(c *stream.Controller, chunk []byte) {
	st.mu.Lock()
	if st.phase.terminal() {
		st.mu.Unlock()
		return
	}
	st.size += int64(len(chunk))
	if st.limit >= 0 && st.size > st.limit {
		st.phase = phaseErrored
		st.mu.Unlock()
		c.Error(st.tooLarge())
		return
	}
	st.mu.Unlock()

	if err := c.Enqueue(chunk); err != nil {
		return
	}
	telemetry.ObserveRequestBody(len(chunk))

	st.flow.Lock()
	defer st.flow.Unlock()
	if c.DesiredSize() <= 0 {
		st.msg.Pause()
	}
}

func (st *bodyState) tooLarge() error {
	source := constants.LimitSourceBodySizeLimit
	metric := telemetry.LimitBodySize
	if st.fromContentLength {
		source = constants.LimitSourceContentLength
		metric = telemetry.LimitContentLength
	}
	telemetry.BodyTooLarge(metric)
	return web.Error(http.StatusRequestEntityTooLarge, fmt.Sprintf(constants.MsgBodySizeExceeded, source, st.limit))
}

func (st *bodyState) pull(*stream.Controller) error {
	st.flow.Lock()
	defer st.flow.Unlock()
	st.msg.Resume()
	return nil
}

func (st *bodyState) cancel(reason error) error {
	st.mu.Lock()
	st.phase = phaseCancelled
	st.mu.Unlock()
	st.msg.Destroy(reason)
	return nil
}
