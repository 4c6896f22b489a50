package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/utils"
	"github.com/awantoch/edgebridge/web"
	"github.com/google/uuid"
)

const (
	DefaultChunkSize     = 32 * 1024
	DefaultHighWaterMark = 16 * 1024
)

// Options configures NewHandler.
type Options struct {
	// Origin overrides the scheme and host requests are resolved against.
	Origin string
	// BodySizeLimit caps request bodies in bytes. Zero or negative disables
	// the cap.
	BodySizeLimit int64
	// ChunkSize bounds the size of request body chunks.
	ChunkSize int
	// HighWaterMark is the number of response bytes buffered before the
	// relay waits for drain.
	HighWaterMark int
}

// NewHandler serves h over net/http. Each request is wrapped as an
// IncomingMessage and its ResponseWriter as a ServerResponse; the handler
// returns once the response has been fully written or abandoned.
func NewHandler(h web.Handler, opts Options) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, h, opts)
	})
}

func serve(w http.ResponseWriter, r *http.Request, h web.Handler, opts Options) {
	id := r.Header.Get(constants.HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	ctx := utils.WithRequestID(r.Context(), id)

	msg := NewIncomingRequest(r, opts.ChunkSize)
	defer msg.Destroy(nil)
	res := NewOutgoingResponse(w, r, opts.HighWaterMark)
	defer func() { <-res.Done() }()

	var resp *web.Response
	req, err := GetRequest(ctx, msg, BaseURL(r, opts.Origin), opts.BodySizeLimit)
	if err != nil {
		utils.WarnCtx(ctx, constants.LogInvalidRequest, "error", err)
		resp = ErrorResponse(err)
	} else if resp, err = invoke(ctx, h, req); err != nil {
		utils.ErrorCtx(ctx, constants.LogHandlerFailed, "error", err)
		resp = ErrorResponse(err)
	}

	if err := SetResponse(ctx, res, resp); err != nil {
		utils.WarnCtx(ctx, constants.LogRelayFailed, "error", err)
	}
}

// invoke runs h, turning a panic or a missing response into an error.
func invoke(ctx context.Context, h web.Handler, req *web.Request) (resp *web.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			utils.ErrorCtx(ctx, constants.LogHandlerPanic, "panic", p)
			resp, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	resp, err = h.ServeWeb(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("handler returned no response")
	}
	return resp, err
}

// ErrorResponse renders err as a JSON error response. A *web.HTTPError keeps
// its status and message; anything else is an opaque 500.
func ErrorResponse(err error) *web.Response {
	status := web.StatusOf(err)
	var he *web.HTTPError
	if !errors.As(err, &he) {
		he = web.Error(status, constants.ResponseInternalError)
	}
	return web.TextResponse(status, constants.ContentTypeJSON, he.Error())
}

// BaseURL returns origin when set, otherwise the scheme and host r was
// received on.
func BaseURL(r *http.Request, origin string) string {
	if origin != "" {
		return origin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if p := r.Header.Get(constants.HeaderForwardedProto); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
