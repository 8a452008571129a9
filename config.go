package auditstream

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	// DefaultEndpoint is used when neither the caller nor the environment
	// provides one.
	DefaultEndpoint = "wss://stream.councilkit.dev/ws"

	// EnvEndpoint overrides DefaultEndpoint when set.
	EnvEndpoint = "AUDITSTREAM_URL"

	DefaultReconnectInterval     = 1 * time.Second
	DefaultMaxReconnectDelay     = 30 * time.Second
	DefaultInitialReconnectDelay = 250 * time.Millisecond
	DefaultMaxReconnectAttempts  = 10
	DefaultHeartbeatInterval     = 25 * time.Second
	DefaultQueueCapacity         = 100
)

// Config configures a stream client. Every field has a default, so the zero
// value is a valid starting point; NewClient resolves a private copy and the
// caller's struct is never mutated.
type Config struct {
	// Endpoint is the stream URL. http(s) schemes are rewritten to ws(s).
	Endpoint string

	// ReconnectInterval is the base delay of the exponential backoff.
	ReconnectInterval time.Duration
	// MaxReconnectDelay caps the backoff delay.
	MaxReconnectDelay time.Duration
	// InitialReconnectDelay is the fixed delay used by manual Reconnect.
	InitialReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive automatic retries.
	MaxReconnectAttempts int

	// HeartbeatInterval is the period of outbound heartbeat frames.
	HeartbeatInterval time.Duration

	// QueueCapacity bounds the outbound queue; pushing past it evicts the
	// oldest frame.
	QueueCapacity int

	// StrictValidation drops notifications that fail the schema check
	// instead of delivering them with a logged warning.
	StrictValidation bool

	// Logger is the internal log sink. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// Dial opens the transport. Defaults to the WebSocket dialer; tests
	// inject their own.
	Dial DialFunc
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		if env := os.Getenv(EnvEndpoint); env != "" {
			c.Endpoint = env
		} else {
			c.Endpoint = DefaultEndpoint
		}
	}
	c.Endpoint = streamURL(c.Endpoint)

	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.InitialReconnectDelay == 0 {
		c.InitialReconnectDelay = DefaultInitialReconnectDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.Dial == nil {
		c.Dial = dialWebSocket
	}
}

// streamURL rewrites HTTP schemes to their WebSocket counterparts so callers
// can hand over the base URL they already have.
func streamURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}
