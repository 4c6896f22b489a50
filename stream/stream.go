// Package stream implements a pull-based byte stream with a bounded queue,
// a source controller and exclusive readers. It is the bridge between
// push-style producers (network bodies, handlers writing responses) and
// pull-style consumers.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrLocked is returned when a reader is requested for a stream that
	// already has one.
	ErrLocked = errors.New("stream: locked to a reader")
	// ErrInvalidState is returned when the controller is used after the
	// stream was closed or errored.
	ErrInvalidState = errors.New("stream: not readable")
	// ErrReleased is returned by reads on a reader whose lock was released.
	ErrReleased = errors.New("stream: reader released")
)

// State is the lifecycle state of a ReadableStream.
type State int

const (
	StateReadable State = iota
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateReadable:
		return "readable"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Source is the underlying producer of a ReadableStream. All callbacks are
// optional and are never invoked while the stream's lock is held, so they
// may call back into the controller.
type Source struct {
	// Start runs once, synchronously, from NewReadableStream.
	Start func(c *Controller) error
	// Pull runs when the queue is below the high-water mark and a consumer
	// wants data. It is never invoked concurrently with itself.
	Pull func(c *Controller) error
	// Cancel runs once when the consumer cancels a readable stream.
	Cancel func(reason error) error
}

// Option configures the queuing strategy of a stream.
type Option func(*ReadableStream)

// WithHighWaterMark sets the queue size at which DesiredSize reaches zero.
func WithHighWaterMark(n int) Option {
	return func(s *ReadableStream) {
		if n >= 0 {
			s.hwm = n
		}
	}
}

// WithSize sets the function used to measure queued chunks. The default
// counts every chunk as 1.
func WithSize(fn func([]byte) int) Option {
	return func(s *ReadableStream) {
		if fn != nil {
			s.size = fn
		}
	}
}

// ByteLength measures chunks by their length in bytes.
func ByteLength(chunk []byte) int { return len(chunk) }

type entry struct {
	chunk []byte
	size  int
}

// ReadableStream is a pull-based stream of byte chunks. Once closed or
// errored it never delivers another chunk.
type ReadableStream struct {
	src  Source
	ctrl *Controller
	hwm  int
	size func([]byte) int

	mu             sync.Mutex
	queue          []entry
	queued         int
	state          State
	err            error
	closeRequested bool
	started        bool
	pulling        bool
	pullAgain      bool
	pending        int
	reader         *Reader
	wake           chan struct{}
}

// NewReadableStream creates a stream over src and runs src.Start.
func NewReadableStream(src Source, opts ...Option) *ReadableStream {
	s := &ReadableStream{
		src:  src,
		hwm:  1,
		size: func([]byte) int { return 1 },
		wake: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctrl = &Controller{stream: s}
	if src.Start != nil {
		if err := src.Start(s.ctrl); err != nil {
			s.ctrl.Error(err)
		}
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s
}

// State reports the current lifecycle state.
func (s *ReadableStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Locked reports whether a reader holds the stream.
func (s *ReadableStream) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader != nil
}

// GetReader locks the stream to a new reader.
func (s *ReadableStream) GetReader() (*Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader != nil {
		return nil, ErrLocked
	}
	r := &Reader{stream: s}
	s.reader = r
	return r, nil
}

// Cancel cancels an unlocked stream. See Reader.Cancel.
func (s *ReadableStream) Cancel(reason error) error {
	if s.Locked() {
		return ErrLocked
	}
	return s.cancel(reason)
}

func (s *ReadableStream) cancel(reason error) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil
	case StateErrored:
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.state = StateClosed
	s.closeRequested = true
	s.queue = nil
	s.queued = 0
	s.broadcast()
	s.mu.Unlock()

	if s.src.Cancel != nil {
		return s.src.Cancel(reason)
	}
	return nil
}

// broadcast wakes every goroutine waiting on the stream. Callers hold mu.
func (s *ReadableStream) broadcast() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *ReadableStream) desiredSize() int {
	if s.state != StateReadable {
		return 0
	}
	return s.hwm - s.queued
}

func (s *ReadableStream) shouldPull() bool {
	if s.src.Pull == nil || !s.started || s.state != StateReadable || s.closeRequested {
		return false
	}
	return s.starved() || s.desiredSize() > 0
}

// starved reports whether some pending read has no queued chunk to take.
func (s *ReadableStream) starved() bool {
	return s.pending > len(s.queue)
}

func (s *ReadableStream) pullIfNeeded() {
	s.mu.Lock()
	if !s.shouldPull() {
		s.mu.Unlock()
		return
	}
	if s.pulling {
		s.pullAgain = true
		s.mu.Unlock()
		return
	}
	s.pulling = true
	s.mu.Unlock()

	for {
		if err := s.src.Pull(s.ctrl); err != nil {
			s.ctrl.Error(err)
		}
		s.mu.Lock()
		again := s.pullAgain && s.shouldPull()
		s.pullAgain = false
		if !again {
			s.pulling = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Controller is the producer-side handle of a stream.
type Controller struct {
	stream *ReadableStream
}

// Enqueue appends a chunk to the queue.
func (c *Controller) Enqueue(chunk []byte) error {
	s := c.stream
	s.mu.Lock()
	if s.state != StateReadable || s.closeRequested {
		s.mu.Unlock()
		return ErrInvalidState
	}
	n := s.size(chunk)
	s.queue = append(s.queue, entry{chunk: chunk, size: n})
	s.queued += n
	s.broadcast()
	s.mu.Unlock()

	s.pullIfNeeded()
	return nil
}

// Close closes the stream once the queued chunks are read.
func (c *Controller) Close() error {
	s := c.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReadable || s.closeRequested {
		return ErrInvalidState
	}
	s.closeRequested = true
	if len(s.queue) == 0 {
		s.state = StateClosed
		s.broadcast()
	}
	return nil
}

// Error moves a readable stream to the errored state, dropping queued
// chunks. It is a no-op on a closed or errored stream.
func (c *Controller) Error(err error) {
	s := c.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReadable {
		return
	}
	s.state = StateErrored
	s.err = err
	s.queue = nil
	s.queued = 0
	s.broadcast()
}

// DesiredSize is the room left below the high-water mark. It is zero or
// negative when the producer should stop, and zero once the stream is no
// longer readable.
func (c *Controller) DesiredSize() int {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	return c.stream.desiredSize()
}

// Reader is an exclusive consumer of a stream.
type Reader struct {
	stream   *ReadableStream
	released bool
}

// Read returns the next chunk, io.EOF once the stream is closed, or the
// error the stream was errored with. Only ctx cancellation interrupts a
// pending read; it leaves the stream untouched.
func (r *Reader) Read(ctx context.Context) ([]byte, error) {
	s := r.stream
	for {
		s.mu.Lock()
		if r.released {
			s.mu.Unlock()
			return nil, ErrReleased
		}
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue[0] = entry{}
			s.queue = s.queue[1:]
			s.queued -= e.size
			if s.closeRequested && len(s.queue) == 0 && s.state == StateReadable {
				s.state = StateClosed
			}
			s.broadcast()
			s.mu.Unlock()
			s.pullIfNeeded()
			return e.chunk, nil
		}
		switch s.state {
		case StateClosed:
			s.mu.Unlock()
			return nil, io.EOF
		case StateErrored:
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		s.pending++
		s.broadcast()
		wake := s.wake
		s.mu.Unlock()

		s.pullIfNeeded()
		select {
		case <-wake:
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
		case <-ctx.Done():
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// Cancel cancels the stream with reason. Cancelling a closed stream is a
// no-op; cancelling an errored stream returns its error.
func (r *Reader) Cancel(reason error) error {
	return r.stream.cancel(reason)
}

// ReleaseLock detaches the reader, leaving the stream unlocked.
func (r *Reader) ReleaseLock() {
	s := r.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == r {
		s.reader = nil
	}
	r.released = true
	s.broadcast()
}
