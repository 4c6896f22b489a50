package node

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitDone(t *testing.T, o *OutgoingResponse) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(waitFor):
		t.Fatal("response did not finish")
	}
}

func TestOutgoingResponse_WritesHeadAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	o := NewOutgoingResponse(rec, httptest.NewRequest("GET", "/", nil), 0)

	require.NoError(t, o.SetHeader("Content-Type", []string{"text/plain"}))
	require.NoError(t, o.SetHeader("x-multi", []string{"1", "2"}))
	assert.Equal(t, []string{"Content-Type", "X-Multi"}, o.HeaderNames())

	o.WriteHead(http.StatusAccepted)
	assert.ErrorIs(t, o.SetHeader("X-Late", []string{"v"}), ErrHeadersSent)
	assert.True(t, o.Write([]byte("he")))
	o.End([]byte("llo"))
	awaitDone(t, o)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"1", "2"}, rec.Header().Values("X-Multi"))
	assert.True(t, rec.Flushed)
}

func TestOutgoingResponse_InvalidHeader(t *testing.T) {
	o := NewOutgoingResponse(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), 0)
	defer o.Destroy(nil)

	assert.ErrorIs(t, o.SetHeader("bad header", []string{"v"}), ErrInvalidHeader)
	assert.ErrorIs(t, o.SetHeader("X-Ok", []string{"line\nbreak"}), ErrInvalidHeader)
	assert.Empty(t, o.HeaderNames())

	require.NoError(t, o.SetHeader("X-Ok", []string{"v"}))
	o.RemoveHeader("x-ok")
	assert.Empty(t, o.HeaderNames())
}

func TestOutgoingResponse_Backpressure(t *testing.T) {
	rec := httptest.NewRecorder()
	o := NewOutgoingResponse(rec, httptest.NewRequest("GET", "/", nil), 4)

	assert.False(t, o.Write([]byte("hello")), "a write reaching the high-water mark asks for drain")
	drained := make(chan struct{})
	o.OnceDrain(func() { close(drained) })
	select {
	case <-drained:
	case <-time.After(waitFor):
		t.Fatal("drain never fired")
	}

	fired := make(chan struct{})
	o.OnceDrain(func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(waitFor):
		t.Fatal("drain with nothing buffered should fire right away")
	}

	o.End(nil)
	awaitDone(t, o)
	assert.Equal(t, "hello", rec.Body.String())
}

// gatedRecorder holds body writes until gate is closed.
type gatedRecorder struct {
	*httptest.ResponseRecorder
	gate chan struct{}
}

func (g *gatedRecorder) Write(b []byte) (int, error) {
	<-g.gate
	return g.ResponseRecorder.Write(b)
}

func TestOutgoingResponse_OnceDrainWithdrawn(t *testing.T) {
	rec := &gatedRecorder{ResponseRecorder: httptest.NewRecorder(), gate: make(chan struct{})}
	o := NewOutgoingResponse(rec, httptest.NewRequest("GET", "/", nil), 4)

	require.False(t, o.Write([]byte("hello")))
	var withdrawn int32
	off := o.OnceDrain(func() { atomic.AddInt32(&withdrawn, 1) })
	off()
	kept := make(chan struct{})
	o.OnceDrain(func() { close(kept) })

	close(rec.gate)
	select {
	case <-kept:
	case <-time.After(waitFor):
		t.Fatal("drain never fired")
	}
	o.End(nil)
	awaitDone(t, o)
	assert.Zero(t, atomic.LoadInt32(&withdrawn), "a withdrawn drain listener is not called")
	assert.Equal(t, "hello", rec.Body.String())
}

func TestOutgoingResponse_DestroyEmitsErrorThenClose(t *testing.T) {
	o := NewOutgoingResponse(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), 0)

	var events []string
	errs := make(chan error, 1)
	o.OnError(func(err error) {
		events = append(events, "error")
		errs <- err
	})
	closed := make(chan struct{})
	o.OnClose(func() {
		events = append(events, "close")
		close(closed)
	})

	boom := errors.New("boom")
	o.Destroy(boom)
	o.Destroy(errors.New("second"))
	assert.True(t, o.Destroyed())
	assert.False(t, o.Write([]byte("x")))

	awaitDone(t, o)
	<-closed
	assert.Equal(t, boom, <-errs)
	assert.Equal(t, []string{"error", "close"}, events)
}

func TestOutgoingResponse_Unsubscribe(t *testing.T) {
	o := NewOutgoingResponse(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), 0)
	called := false
	off := o.OnClose(func() { called = true })
	off()
	o.End(nil)
	awaitDone(t, o)
	assert.False(t, called)

	late := make(chan struct{})
	o.OnClose(func() { close(late) })
	select {
	case <-late:
	case <-time.After(waitFor):
		t.Fatal("close subscriber on a finished response never ran")
	}
}

func TestOutgoingResponse_ClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	o := NewOutgoingResponse(httptest.NewRecorder(), r, 0)

	cancel()
	awaitDone(t, o)
	assert.True(t, o.Destroyed())
}
