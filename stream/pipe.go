package stream

import (
	"context"
	"errors"
	"io"
)

const defaultChunkSize = 32 * 1024

// PipeWriter is the push side of a stream created by NewPipe.
type PipeWriter struct {
	s *ReadableStream
}

// NewPipe returns a stream and a writer feeding it. Write blocks while the
// stream's queue is at or above its high-water mark and no read is waiting.
func NewPipe(opts ...Option) (*ReadableStream, *PipeWriter) {
	s := NewReadableStream(Source{}, opts...)
	return s, &PipeWriter{s: s}
}

// Write enqueues a copy of p. It fails with io.ErrClosedPipe once the
// consumer cancelled the stream, or with the stream's error.
func (w *PipeWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s := w.s
	for {
		s.mu.Lock()
		if s.state == StateErrored {
			err := s.err
			s.mu.Unlock()
			return 0, err
		}
		if s.state != StateReadable || s.closeRequested {
			s.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if s.desiredSize() > 0 || s.starved() {
			s.mu.Unlock()
			break
		}
		wake := s.wake
		s.mu.Unlock()
		<-wake
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)
	if err := s.ctrl.Enqueue(chunk); err != nil {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}

// Close closes the stream after the queued chunks are read. Closing twice
// is not an error.
func (w *PipeWriter) Close() error {
	if err := w.s.ctrl.Close(); err != nil && !errors.Is(err, ErrInvalidState) {
		return err
	}
	return nil
}

// CloseWithError errors the stream with err, or closes it when err is nil.
func (w *PipeWriter) CloseWithError(err error) error {
	if err == nil {
		return w.Close()
	}
	w.s.ctrl.Error(err)
	return nil
}

// FromReader wraps r as a pull-based stream. Cancelling the stream closes r
// when it implements io.Closer.
func FromReader(r io.Reader, opts ...Option) *ReadableStream {
	return NewReadableStream(Source{
		Pull: func(c *Controller) error {
			buf := make([]byte, defaultChunkSize)
			n, err := r.Read(buf)
			if n > 0 {
				if c.Enqueue(buf[:n]) != nil {
					return nil
				}
			}
			if errors.Is(err, io.EOF) {
				_ = c.Close()
				return nil
			}
			return err
		},
		Cancel: func(error) error {
			if rc, ok := r.(io.Closer); ok {
				return rc.Close()
			}
			return nil
		},
	}, opts...)
}

// FromBytes returns a closed stream holding b as a single chunk.
func FromBytes(b []byte) *ReadableStream {
	return NewReadableStream(Source{
		Start: func(c *Controller) error {
			if len(b) > 0 {
				if err := c.Enqueue(b); err != nil {
					return err
				}
			}
			return c.Close()
		},
	})
}

type readCloser struct {
	ctx context.Context
	r   *Reader
	buf []byte
}

// NewReadCloser locks s and exposes it as an io.ReadCloser. Close cancels
// the stream and releases the lock.
func NewReadCloser(ctx context.Context, s *ReadableStream) (io.ReadCloser, error) {
	r, err := s.GetReader()
	if err != nil {
		return nil, err
	}
	return &readCloser{ctx: ctx, r: r}, nil
}

func (rc *readCloser) Read(p []byte) (int, error) {
	for len(rc.buf) == 0 {
		chunk, err := rc.r.Read(rc.ctx)
		if err != nil {
			return 0, err
		}
		rc.buf = chunk
	}
	n := copy(p, rc.buf)
	rc.buf = rc.buf[n:]
	return n, nil
}

func (rc *readCloser) Close() error {
	err := rc.r.Cancel(nil)
	rc.r.ReleaseLock()
	return err
}

// ReadAll locks s and reads it to the end. The stream stays locked.
func ReadAll(ctx context.Context, s *ReadableStream) ([]byte, error) {
	r, err := s.GetReader()
	if err != nil {
		return nil, err
	}
	var out []byte
	for {
		chunk, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
}
