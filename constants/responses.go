package constants

// HTTP Response Messages
const (
	HealthCheckResponse     = `{"status":"healthy"}`
	ResponseInternalError   = "Internal server error"
	ResponseInvalidURL      = "invalid request URL: %v"
	ResponseDefaultError    = "Error"
	ResponseBodyLockedFatal = "Fatal error: Response body is locked. " +
		"This can happen when the response was already read (for example through 'response.json()' or 'response.text()')."
)

// Request body limit messages
const (
	MsgContentLengthTooLarge = "Received content-length of %d, but only accept up to %d bytes."
	MsgBodySizeExceeded      = "request body size exceeded %s of %d"
	LimitSourceContentLength = "'content-length'"
	LimitSourceBodySizeLimit = "BODY_SIZE_LIMIT"
)

// Error Messages for Logging
const (
	LogHandlerFailed       = "request handler failed"
	LogHandlerPanic        = "request handler panicked"
	LogCompletionFailed    = "request handler failed after the response was sent"
	LogRelayFailed         = "response relay ended with an error"
	LogInvalidRequest      = "rejecting request before handling"
	LogRenderNotFound      = "Failed to render not-found page: %v"
	LogFailedWriteResponse = "Failed to write response: %v"
)
