package auditstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMappings(t *testing.T) {
	cases := []struct {
		rawType  string
		kind     NotificationType
		priority Priority
	}{
		{"status_update", NotificationStatusUpdate, PriorityLow},
		{"council_initialized", NotificationStatusUpdate, PriorityLow},
		{"document_audit_started", NotificationAuditStarted, PriorityMedium},
		{"audit_started", NotificationAuditStarted, PriorityMedium},
		{"document_audit_completed", NotificationAuditCompleted, PriorityMedium},
		{"audit_completed", NotificationAuditCompleted, PriorityMedium},
		{"error", NotificationErrorOccurred, PriorityHigh},
		{"error_occurred", NotificationErrorOccurred, PriorityHigh},
		{"system_alert", NotificationSystemAlert, PriorityMedium},
	}

	for _, tc := range cases {
		t.Run(tc.rawType, func(t *testing.T) {
			n, err := Normalize([]byte(`{"type":"` + tc.rawType + `","detail":"x","timestamp":1724500000000}`))
			require.NoError(t, err)
			require.NotNil(t, n)
			assert.Equal(t, tc.kind, n.Type)
			assert.Equal(t, tc.priority, n.Priority)
			assert.Equal(t, int64(1724500000000), n.Timestamp)
			assert.Equal(t, "x", n.Data["detail"])
			assert.NotContains(t, n.Data, "type", "raw type must not leak into data")
		})
	}
}

func TestNormalizeLivenessFrames(t *testing.T) {
	for _, rawType := range []string{"heartbeat", "heartbeat_ack", "ping", "pong"} {
		t.Run(rawType, func(t *testing.T) {
			n, err := Normalize([]byte(`{"type":"` + rawType + `"}`))
			require.NoError(t, err)
			assert.Nil(t, n, "liveness frames produce no notification")
		})
	}
}

func TestNormalizeUnknownType(t *testing.T) {
	n, err := Normalize([]byte(`{"type":"quorum_reached","council":"alpha"}`))
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, NotificationSystemAlert, n.Type)
	assert.Equal(t, PriorityLow, n.Priority)
	// The whole payload rides along, including the unrecognized type.
	assert.Equal(t, "quorum_reached", n.Data["type"])
	assert.Equal(t, "alpha", n.Data["council"])
}

func TestNormalizeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"not an object":   `[1,2,3]`,
		"null":            `null`,
		"missing type":    `{"message":"hi"}`,
		"non-string type": `{"type":42}`,
		"empty type":      `{"type":""}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			n, err := Normalize([]byte(raw))
			assert.Error(t, err)
			assert.Nil(t, n)
		})
	}
}

func TestNormalizeTimestampFallback(t *testing.T) {
	before := time.Now().UnixMilli()
	n, err := Normalize([]byte(`{"type":"status_update"}`))
	after := time.Now().UnixMilli()

	require.NoError(t, err)
	assert.GreaterOrEqual(t, n.Timestamp, before)
	assert.LessOrEqual(t, n.Timestamp, after)
}
