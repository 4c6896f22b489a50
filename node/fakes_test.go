package node

import (
	"bytes"
	"net/http"
	"sync"
)

// fakeMessage is an IncomingMessage driven by the test.
type fakeMessage struct {
	method string
	url    string
	header http.Header
	major  int

	mu         sync.Mutex
	onData     []func([]byte)
	onEnd      []func()
	onError    []func(error)
	pauses     int
	resumes    int
	destroyed  bool
	destroys   int
	destroyErr error
}

func newFakeMessage(header map[string]string) *fakeMessage {
	h := http.Header{}
	for k, v := range header {
		h.Set(k, v)
	}
	return &fakeMessage{method: http.MethodPost, url: "/upload", header: h, major: 1}
}

func (m *fakeMessage) Method() string        { return m.method }
func (m *fakeMessage) URL() string           { return m.url }
func (m *fakeMessage) Header() http.Header   { return m.header }
func (m *fakeMessage) HTTPVersionMajor() int { return m.major }

func (m *fakeMessage) OnData(fn func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onData = append(m.onData, fn)
}

func (m *fakeMessage) OnEnd(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, fn)
}

func (m *fakeMessage) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = append(m.onError, fn)
}

func (m *fakeMessage) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
}

func (m *fakeMessage) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
}

func (m *fakeMessage) Destroy(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	m.destroys++
	m.destroyErr = err
}

func (m *fakeMessage) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

func (m *fakeMessage) emit(chunk string) {
	m.mu.Lock()
	fns := append([]func([]byte){}, m.onData...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn([]byte(chunk))
	}
}

func (m *fakeMessage) end() {
	m.mu.Lock()
	fns := append([]func(){}, m.onEnd...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *fakeMessage) fail(err error) {
	m.mu.Lock()
	fns := append([]func(error){}, m.onError...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (m *fakeMessage) counts() (pauses, resumes, destroys int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses, m.resumes, m.destroys
}

// fakeResponse is a ServerResponse that records what it was asked to do.
type fakeResponse struct {
	mu         sync.Mutex
	header     http.Header
	status     int
	body       bytes.Buffer
	ends       int
	full       bool
	rejectName string
	destroyed  bool
	destroys   int
	destroyErr error
	drains     map[int]func()
	drainCalls int
	nextID     int
	onClose    map[int]func()
	onError    map[int]func(error)
}

func newFakeResponse() *fakeResponse {
	return &fakeResponse{
		header:  http.Header{},
		drains:  map[int]func(){},
		onClose: map[int]func(){},
		onError: map[int]func(error){},
	}
}

func (r *fakeResponse) SetHeader(name string, values []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == r.rejectName {
		return ErrInvalidHeader
	}
	r.header[http.CanonicalHeaderKey(name)] = values
	return nil
}

func (r *fakeResponse) HeaderNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name := range r.header {
		names = append(names, name)
	}
	return names
}

func (r *fakeResponse) RemoveHeader(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header.Del(name)
}

func (r *fakeResponse) WriteHead(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *fakeResponse) Write(chunk []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body.Write(chunk)
	return !r.full
}

func (r *fakeResponse) End(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body.Write(chunk)
	r.ends++
}

func (r *fakeResponse) Destroy(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
	r.destroys++
	r.destroyErr = err
}

func (r *fakeResponse) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

func (r *fakeResponse) OnClose(fn func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.onClose[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.onClose, id)
	}
}

func (r *fakeResponse) OnError(fn func(error)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.onError[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.onError, id)
	}
}

func (r *fakeResponse) OnceDrain(fn func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drainCalls++
	id := r.nextID
	r.nextID++
	r.drains[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.drains, id)
	}
}

func (r *fakeResponse) setFull(full bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full = full
}

func (r *fakeResponse) drain() {
	r.mu.Lock()
	fns := r.drains
	r.drains = map[int]func(){}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (r *fakeResponse) pendingDrains() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drains)
}

func (r *fakeResponse) listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.onClose) + len(r.onError)
}

func (r *fakeResponse) close() {
	r.mu.Lock()
	var fns []func()
	for _, fn := range r.onClose {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (r *fakeResponse) fail(err error) {
	r.mu.Lock()
	var fns []func(error)
	for _, fn := range r.onError {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (r *fakeResponse) snapshot() (status int, body string, ends, destroys int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.body.String(), r.ends, r.destroys
}
