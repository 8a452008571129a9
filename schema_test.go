package auditstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNotification(t *testing.T) {
	valid := &Notification{
		Type:      NotificationAuditCompleted,
		Data:      map[string]any{"document": "VISION.md"},
		Timestamp: 1724500000000,
		Priority:  PriorityMedium,
	}
	require.NoError(t, ValidateNotification(valid))

	t.Run("empty data object is valid", func(t *testing.T) {
		n := *valid
		n.Data = map[string]any{}
		assert.NoError(t, ValidateNotification(&n))
	})

	t.Run("nil data is rejected", func(t *testing.T) {
		n := *valid
		n.Data = nil
		assert.Error(t, ValidateNotification(&n))
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		n := *valid
		n.Type = "council_initialized"
		assert.Error(t, ValidateNotification(&n))
	})

	t.Run("unknown priority is rejected", func(t *testing.T) {
		n := *valid
		n.Priority = "urgent"
		assert.Error(t, ValidateNotification(&n))
	})

	t.Run("negative timestamp is rejected", func(t *testing.T) {
		n := *valid
		n.Timestamp = -1
		assert.Error(t, ValidateNotification(&n))
	})
}

func TestNormalizedOutputPassesSchema(t *testing.T) {
	inputs := []string{
		`{"type":"status_update","message":"ok","timestamp":1724500000000}`,
		`{"type":"document_audit_started","document":{"name":"VISION.md"}}`,
		`{"type":"error","message":"boom"}`,
		`{"type":"something_new","payload":123}`,
	}

	for _, raw := range inputs {
		n, err := Normalize([]byte(raw))
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.NoError(t, ValidateNotification(n), "input %s", raw)
	}
}
