// Package vercel adapts a request handler to Vercel functions. Each
// request becomes a RequestEvent; the handler answers by opening a writable
// response stream, and the adapter falls back to a 404 page when nothing
// answered or a plain-text 500 when the handler failed first.
package vercel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/node"
	"github.com/awantoch/edgebridge/utils"
	"github.com/awantoch/edgebridge/web"
	"github.com/google/uuid"
)

// Handler serves a RequestEvent. It reports false when no route matched.
// A handler answers by calling GetWritableStream; it may keep writing the
// body after that and until it returns.
type Handler interface {
	Handle(ctx context.Context, ev *RequestEvent) (bool, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev *RequestEvent) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, ev *RequestEvent) (bool, error) {
	return f(ctx, ev)
}

// Options configures an Adapter.
type Options struct {
	Handler Handler
	// NotFound renders the 404 page for a path. DefaultNotFound is used
	// when nil.
	NotFound func(path string) string
	// IsStaticPath reports requests Vercel should serve from its static
	// output instead.
	IsStaticPath func(method string, u *url.URL) bool
	// Env defaults to the process environment.
	Env Env

	// The remaining fields configure the net/http entry point.
	Origin        string
	BodySizeLimit int64
	ChunkSize     int
	HighWaterMark int
}

// Adapter serves a Handler on Vercel.
type Adapter struct {
	opts Options
	http http.Handler
}

var _ web.Handler = (*Adapter)(nil)

// New returns an Adapter for opts.
func New(opts Options) *Adapter {
	if opts.NotFound == nil {
		opts.NotFound = DefaultNotFound
	}
	if opts.Env == nil {
		opts.Env = OSEnv
	}
	if opts.HighWaterMark <= 0 {
		opts.HighWaterMark = node.DefaultHighWaterMark
	}
	a := &Adapter{opts: opts}
	a.http = node.NewHandler(a, node.Options{
		Origin:        opts.Origin,
		BodySizeLimit: opts.BodySizeLimit,
		ChunkSize:     opts.ChunkSize,
		HighWaterMark: opts.HighWaterMark,
	})
	return a
}

// ServeHTTP is the Vercel Go runtime entry point.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.http.ServeHTTP(w, r)
}

// ServeWeb implements web.Handler. It never fails; failures become 500
// responses.
func (a *Adapter) ServeWeb(ctx context.Context, req *web.Request) (*web.Response, error) {
	return a.OnRequest(ctx, req), nil
}

type outcome struct {
	handled bool
	err     error
}

// OnRequest produces the response for req.
func (a *Adapter) OnRequest(ctx context.Context, req *web.Request) *web.Response {
	if a.opts.IsStaticPath != nil && a.opts.IsStaticPath(req.Method, req.URL) {
		utils.DebugCtx(ctx, "static path passthrough", "path", req.URL.Path)
		h := http.Header{}
		h.Set(constants.HeaderMiddlewareNext, constants.MiddlewareNextOn)
		return web.NewResponse(http.StatusOK, h, nil)
	}

	resolved := make(chan *web.Response, 1)
	ev := a.newEvent(ctx, req, func(resp *web.Response) { resolved <- resp })

	done := make(chan outcome, 1)
	go func() {
		handled, err := a.invoke(ctx, ev)
		ev.finish(err)
		done <- outcome{handled: handled, err: err}
	}()

	select {
	case resp := <-resolved:
		go a.complete(ctx, done)
		return resp
	case out := <-done:
		select {
		case resp := <-resolved:
			a.logCompletion(ctx, out.err)
			return resp
		default:
		}
		if out.err != nil {
			utils.ErrorCtx(ctx, constants.LogHandlerFailed, "error", out.err, "path", req.URL.Path)
			return errorResponse(out.err)
		}
		return a.notFound(req.URL.Path)
	case <-ctx.Done():
		return errorResponse(ctx.Err())
	}
}

func (a *Adapter) newEvent(ctx context.Context, req *web.Request, resolve func(*web.Response)) *RequestEvent {
	id, ok := utils.RequestIDFromContext(ctx)
	if !ok || id == "" {
		id = uuid.NewString()
	}
	region, _ := a.opts.Env.Get(constants.EnvVercelRegion)
	env, _ := a.opts.Env.Get(constants.EnvVercelEnv)
	return &RequestEvent{
		Mode:          constants.ModeServer,
		ID:            id,
		URL:           req.URL,
		Request:       req.WithContext(ctx),
		Env:           a.opts.Env,
		Platform:      Platform{Name: constants.PlatformVercel, Region: region, Env: env},
		highWaterMark: a.opts.HighWaterMark,
		resolve:       resolve,
	}
}

func (a *Adapter) invoke(ctx context.Context, ev *RequestEvent) (handled bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			utils.ErrorCtx(ctx, constants.LogHandlerPanic, "panic", p, "stack", string(debug.Stack()))
			handled, err = false, fmt.Errorf("panic: %v", p)
		}
	}()
	if a.opts.Handler == nil {
		return false, nil
	}
	return a.opts.Handler.Handle(ctx, ev)
}

// complete waits for a handler that already answered.
func (a *Adapter) complete(ctx context.Context, done <-chan outcome) {
	out := <-done
	a.logCompletion(ctx, out.err)
}

func (a *Adapter) logCompletion(ctx context.Context, err error) {
	if err != nil {
		utils.ErrorCtx(ctx, constants.LogCompletionFailed, "error", err)
	}
}

func (a *Adapter) notFound(path string) *web.Response {
	resp := web.TextResponse(http.StatusNotFound, constants.ContentTypeHTML, a.opts.NotFound(path))
	resp.Header.Set(constants.HeaderNotFound, path)
	return resp
}

func errorResponse(err error) *web.Response {
	msg := constants.ResponseDefaultError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	resp := web.TextResponse(http.StatusInternalServerError, constants.ContentTypeText, msg)
	resp.Header.Set(constants.HeaderError, constants.ErrorSourceEdge)
	return resp
}
