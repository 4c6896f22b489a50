package constants

// Environment Variables
const (
	EnvDebug         = "EDGEBRIDGE_DEBUG"
	EnvConfigPath    = "EDGEBRIDGE_CONFIG"
	EnvHost          = "HOST"
	EnvPort          = "PORT"
	EnvOrigin        = "ORIGIN"
	EnvBodySizeLimit = "BODY_SIZE_LIMIT"
	EnvVercelRegion  = "VERCEL_REGION"
	EnvVercelEnv     = "VERCEL_ENV"
	EnvEventsURL     = "EDGEBRIDGE_EVENTS_URL"
)

// Body size limit spelling that disables the limit.
const BodySizeLimitInfinity = "Infinity"

// Config file formats
const (
	ConfigFormatJSON = ".json"
	ConfigFormatYAML = ".yaml"
	ConfigFormatYML  = ".yml"
)

// Embedded schema name
const ConfigSchemaFile = "edgebridge.config.schema.json"

// Event bus drivers and defaults
const (
	EventDriverMemory     = "memory"
	EventDriverNATS       = "nats"
	DefaultNATSClusterID  = "edgebridge"
	DefaultNATSClientID   = "edgebridge-client"
	TopicRequestCompleted = "edgebridge.request.completed"
)
