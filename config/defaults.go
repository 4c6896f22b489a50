package config

// Defaults for edgebridge.
const (
	// DefaultConfigPath is the config file read when none is given.
	DefaultConfigPath = "edgebridge.config.json"
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 3000
	// DefaultHighWaterMark matches the usual 16 KiB writable buffer of
	// server responses.
	DefaultHighWaterMark = 16 * 1024
	DefaultChunkSize     = 32 * 1024
	// DefaultBodySizeLimit is 512K, counted in binary units like every
	// single-letter BODY_SIZE_LIMIT suffix.
	DefaultBodySizeLimit = 512 * 1024
	// NoBodySizeLimit lifts the cap. size_limit: -1 in a config file and
	// BODY_SIZE_LIMIT=Infinity (or 0) both resolve to it.
	NoBodySizeLimit = -1
)
