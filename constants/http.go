package constants

// HTTP Headers
const (
	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderForwardedProto   = "X-Forwarded-Proto"
	HeaderRequestID        = "X-Request-Id"
)

// Vercel platform headers. The client IP and geolocation values are
// injected by the Vercel edge network.
const (
	HeaderVercelIP        = "X-Real-Ip"
	HeaderVercelCountry   = "X-Vercel-Ip-Country"
	HeaderVercelRegion    = "X-Vercel-Ip-Country-Region"
	HeaderVercelCity      = "X-Vercel-Ip-City"
	HeaderVercelLatitude  = "X-Vercel-Ip-Latitude"
	HeaderVercelLongitude = "X-Vercel-Ip-Longitude"
	HeaderMiddlewareNext  = "X-Middleware-Next"
	HeaderNotFound        = "X-Not-Found"
	HeaderError           = "X-Error"
)

// CORS
const (
	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderAllowMethods = "Access-Control-Allow-Methods"
	HeaderAllowHeaders = "Access-Control-Allow-Headers"
	CORSAllowOrigin    = "*"
	CORSAllowMethods   = "GET, POST, PUT, DELETE, OPTIONS"
	CORSAllowHeaders   = "Content-Type, Authorization"
)

// Content Types
const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeHTML   = "text/html; charset=utf-8"
	ContentTypeNDJSON = "application/x-ndjson"
)

// Platform identifiers
const (
	ModeServer       = "server"
	PlatformVercel   = "vercel"
	ErrorSourceEdge  = "vercel-edge"
	MiddlewareNextOn = "1"
)
