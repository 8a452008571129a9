package auditstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultReconnectInterval, cfg.ReconnectInterval)
	assert.Equal(t, DefaultMaxReconnectDelay, cfg.MaxReconnectDelay)
	assert.Equal(t, DefaultInitialReconnectDelay, cfg.InitialReconnectDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Dial)
}

func TestConfigKeepsOverrides(t *testing.T) {
	cfg := Config{
		Endpoint:             "wss://stream.example.com/ws",
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 2,
		QueueCapacity:        7,
	}
	cfg.defaults()

	assert.Equal(t, "wss://stream.example.com/ws", cfg.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 2, cfg.MaxReconnectAttempts)
	assert.Equal(t, 7, cfg.QueueCapacity)
	// Untouched fields still get backfilled.
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
}

func TestConfigEndpointFromEnvironment(t *testing.T) {
	t.Setenv(EnvEndpoint, "wss://staging.example.com/ws")

	var cfg Config
	cfg.defaults()
	assert.Equal(t, "wss://staging.example.com/ws", cfg.Endpoint)
}

func TestConfigSchemeRewrite(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://stream.example.com/ws", "wss://stream.example.com/ws"},
		{"http://localhost:8080/ws", "ws://localhost:8080/ws"},
		{"wss://stream.example.com/ws", "wss://stream.example.com/ws"},
		{"ws://localhost:8080/ws", "ws://localhost:8080/ws"},
	}

	for _, tc := range cases {
		cfg := Config{Endpoint: tc.in}
		cfg.defaults()
		assert.Equal(t, tc.want, cfg.Endpoint, "endpoint %s", tc.in)
	}
}
