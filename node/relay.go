package node

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/stream"
	"github.com/awantoch/edgebridge/telemetry"
	"github.com/awantoch/edgebridge/web"
)

// SetResponse writes resp to res. Headers are copied first; if the sink
// rejects one, every header already set is removed and a 500 carrying the
// error text is sent instead. The body is relayed chunk by chunk, waiting
// for drain whenever res reports a full buffer. A close or error on res
// cancels the body, and a failing body destroys res.
//
// The returned error is the header or body failure, if any. A client that
// goes away mid-body is not an error.
func SetResponse(ctx context.Context, res ServerResponse, resp *web.Response) error {
	if err := copyHeaders(res, resp); err != nil {
		for _, name := range res.HeaderNames() {
			res.RemoveHeader(name)
		}
		res.WriteHead(500)
		res.End([]byte(err.Error()))
		return err
	}
	res.WriteHead(resp.Status)

	if resp.Body == nil {
		res.End(nil)
		return nil
	}
	if resp.Body.Locked() {
		res.End([]byte(constants.ResponseBodyLockedFatal))
		return web.ErrBodyLocked
	}
	reader, err := resp.Body.GetReader()
	if err != nil {
		res.End([]byte(constants.ResponseBodyLockedFatal))
		return web.ErrBodyLocked
	}
	if res.Destroyed() {
		_ = reader.Cancel(nil)
		return nil
	}

	r := &relay{res: res, reader: reader, done: make(chan struct{})}
	r.subscribe()
	return r.run(ctx)
}

func copyHeaders(res ServerResponse, resp *web.Response) error {
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := res.SetHeader(name, resp.Header[name]); err != nil {
			return err
		}
	}
	return nil
}

// relay moves one body into one sink. It stops exactly once, either by
// completing or by cancel.
type relay struct {
	res    ServerResponse
	reader *stream.Reader

	once sync.Once
	done chan struct{}

	mu   sync.Mutex
	offs []func()
	err  error
}

func (r *relay) subscribe() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offs = append(r.offs,
		r.res.OnClose(func() { r.cancel(nil) }),
		r.res.OnError(r.cancel),
	)
}

func (r *relay) unsubscribe() {
	r.mu.Lock()
	offs := r.offs
	r.offs = nil
	r.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

// cancel tears the relay down. A nil err means the sink closed early.
func (r *relay) cancel(err error) {
	r.once.Do(func() {
		r.unsubscribe()
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)

		_ = r.reader.Cancel(err)
		reason := telemetry.ReasonClose
		if err != nil {
			reason = telemetry.ReasonError
			r.res.Destroy(err)
		}
		telemetry.RelayCancelled(reason)
	})
}

// complete claims the relay for a normal finish. It reports false when a
// cancel got there first.
func (r *relay) complete() bool {
	won := false
	r.once.Do(func() {
		won = true
		r.unsubscribe()
		close(r.done)
	})
	return won
}

func (r *relay) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *relay) result() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *relay) run(ctx context.Context) error {
	for {
		chunk, err := r.reader.Read(ctx)
		if r.stopped() {
			return r.result()
		}
		switch {
		case errors.Is(err, io.EOF):
			if !r.complete() {
				return r.result()
			}
			r.res.End(nil)
			return nil
		case err != nil:
			r.cancel(err)
			return err
		}

		telemetry.ObserveResponseBody(len(chunk))
		if r.res.Write(chunk) {
			continue
		}
		drained := make(chan struct{})
		off := r.res.OnceDrain(func() { close(drained) })
		select {
		case <-drained:
		case <-r.done:
			off()
			return r.result()
		case <-ctx.Done():
			off()
			r.cancel(ctx.Err())
			return ctx.Err()
		}
	}
}
