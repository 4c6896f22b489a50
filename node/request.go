package node

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/web"
)

// GetRequest builds a standard request from msg. base is the scheme and
// host the request path is resolved against. The body follows the rules of
// RequestBody; a 413 from it is returned as is.
func GetRequest(ctx context.Context, msg IncomingMessage, base string, sizeLimit int64) (*web.Request, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + msg.URL())
	if err != nil {
		return nil, web.Errorf(http.StatusBadRequest, constants.ResponseInvalidURL, err)
	}
	body, err := RequestBody(msg, sizeLimit)
	if err != nil {
		return nil, err
	}
	return web.NewRequest(ctx, msg.Method(), u, msg.Header().Clone(), body), nil
}
