package node

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/net/http/httpguts"
)

// OutgoingResponse exposes an http.ResponseWriter as a ServerResponse. A
// single goroutine owns the writer: it sends the head, then the queued
// chunks, flushing after each. Write reports false once highWaterMark bytes
// are waiting, and drain fires when the queue empties again.
//
// The response is destroyed when the request context ends, which net/http
// does when the client goes away.
type OutgoingResponse struct {
	w   http.ResponseWriter
	rc  *http.ResponseController
	hwm int

	mu          sync.Mutex
	cond        *sync.Cond
	header      http.Header
	status      int
	headSent    bool
	wroteHeader bool
	queue       [][]byte
	buffered    int
	needDrain   bool
	drains      map[int]func()
	ending      bool
	destroyed   bool
	finished    bool
	err         error
	nextID      int
	onClose     map[int]func()
	onError     map[int]func(error)
	done        chan struct{}
}

var _ ServerResponse = (*OutgoingResponse)(nil)

// NewOutgoingResponse wraps w for the request r.
func NewOutgoingResponse(w http.ResponseWriter, r *http.Request, highWaterMark int) *OutgoingResponse {
	if highWaterMark <= 0 {
		highWaterMark = DefaultHighWaterMark
	}
	o := &OutgoingResponse{
		w:       w,
		rc:      http.NewResponseController(w),
		hwm:     highWaterMark,
		header:  http.Header{},
		drains:  map[int]func(){},
		onClose: map[int]func(){},
		onError: map[int]func(error){},
		done:    make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	// Handlers may stream the request body back while it is still arriving.
	_ = o.rc.EnableFullDuplex()

	go o.loop()
	go func() {
		select {
		case <-r.Context().Done():
			o.Destroy(nil)
		case <-o.done:
		}
	}()
	return o
}

// Done is closed once the response finished or was destroyed and the
// writer is no longer used.
func (o *OutgoingResponse) Done() <-chan struct{} { return o.done }

func (o *OutgoingResponse) SetHeader(name string, values []string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
	}
	for _, v := range values {
		if !httpguts.ValidHeaderFieldValue(v) {
			return fmt.Errorf("%w: value %q for %s", ErrInvalidHeader, v, name)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.headSent {
		return ErrHeadersSent
	}
	o.header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	return nil
}

func (o *OutgoingResponse) HeaderNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.header))
	for name := range o.header {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *OutgoingResponse) RemoveHeader(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.header.Del(name)
}

func (o *OutgoingResponse) WriteHead(status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writeHeadLocked(status)
}

func (o *OutgoingResponse) writeHeadLocked(status int) {
	if o.headSent {
		return
	}
	o.status = status
	o.headSent = true
	o.cond.Broadcast()
}

func (o *OutgoingResponse) Write(chunk []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed || o.ending {
		return false
	}
	o.writeHeadLocked(http.StatusOK)
	if len(chunk) > 0 {
		o.queue = append(o.queue, append([]byte(nil), chunk...))
		o.buffered += len(chunk)
		o.cond.Broadcast()
	}
	if o.buffered >= o.hwm {
		o.needDrain = true
		return false
	}
	return true
}

func (o *OutgoingResponse) End(chunk []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed || o.ending {
		return
	}
	o.writeHeadLocked(http.StatusOK)
	if len(chunk) > 0 {
		o.queue = append(o.queue, append([]byte(nil), chunk...))
		o.buffered += len(chunk)
	}
	o.ending = true
	o.cond.Broadcast()
}

// Destroy abandons the response. Queued chunks are dropped; error
// subscribers see err when it is non-nil, then close fires.
func (o *OutgoingResponse) Destroy(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed || o.finished {
		return
	}
	o.destroyed = true
	o.err = err
	o.cond.Broadcast()
}

func (o *OutgoingResponse) Destroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destroyed
}

func (o *OutgoingResponse) OnClose(fn func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished {
		go fn()
		return func() {}
	}
	id := o.nextID
	o.nextID++
	o.onClose[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.onClose, id)
	}
}

func (o *OutgoingResponse) OnError(fn func(err error)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.onError[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.onError, id)
	}
}

func (o *OutgoingResponse) OnceDrain(fn func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed || o.finished {
		return func() {}
	}
	if !o.needDrain {
		go fn()
		return func() {}
	}
	id := o.nextID
	o.nextID++
	o.drains[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.drains, id)
	}
}

func (o *OutgoingResponse) loop() {
	o.mu.Lock()
	for {
		for !o.destroyed && !o.ending && len(o.queue) == 0 && (!o.headSent || o.wroteHeader) {
			o.cond.Wait()
		}
		if o.destroyed {
			break
		}

		if !o.wroteHeader && o.headSent {
			o.wroteHeader = true
			header, status := o.header.Clone(), o.status
			o.mu.Unlock()
			err := o.sendHead(header, status)
			o.mu.Lock()
			if err != nil {
				o.fail(err)
				break
			}
			continue
		}

		if len(o.queue) > 0 {
			chunk := o.queue[0]
			o.queue[0] = nil
			o.queue = o.queue[1:]
			o.mu.Unlock()
			err := o.send(chunk)
			o.mu.Lock()
			o.buffered -= len(chunk)
			if err != nil {
				o.fail(err)
				break
			}
			if o.buffered == 0 && o.needDrain {
				o.needDrain = false
				drains := o.drains
				o.drains = map[int]func(){}
				o.mu.Unlock()
				for _, fn := range drains {
					fn()
				}
				o.mu.Lock()
			}
			continue
		}

		// ending with nothing left to send
		break
	}
	o.mu.Unlock()
	o.finish()
}

// fail records a write error. Callers hold mu.
func (o *OutgoingResponse) fail(err error) {
	if !o.destroyed {
		o.destroyed = true
		o.err = err
	}
}

func (o *OutgoingResponse) sendHead(header http.Header, status int) error {
	dst := o.w.Header()
	for name, values := range header {
		dst[name] = values
	}
	o.w.WriteHeader(status)
	return o.flush()
}

func (o *OutgoingResponse) send(chunk []byte) error {
	if _, err := o.w.Write(chunk); err != nil {
		return err
	}
	return o.flush()
}

func (o *OutgoingResponse) flush() error {
	if err := o.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (o *OutgoingResponse) finish() {
	o.mu.Lock()
	o.finished = true
	err := o.err
	errs := make([]func(error), 0, len(o.onError))
	for _, fn := range o.onError {
		errs = append(errs, fn)
	}
	closes := make([]func(), 0, len(o.onClose))
	for _, fn := range o.onClose {
		closes = append(closes, fn)
	}
	o.onError = map[int]func(error){}
	o.onClose = map[int]func(){}
	o.mu.Unlock()

	if err != nil {
		for _, fn := range errs {
			fn(err)
		}
	}
	for _, fn := range closes {
		fn()
	}
	close(o.done)
}
