package auditstream

// ============================================================================
// Notification Model
// ============================================================================

// NotificationType is the closed set of notification kinds delivered to
// subscribers. Raw server events are mapped onto this set by Normalize;
// nothing else ever reaches a message handler.
type NotificationType string

const (
	NotificationStatusUpdate   NotificationType = "status_update"
	NotificationAuditStarted   NotificationType = "audit_started"
	NotificationAuditCompleted NotificationType = "audit_completed"
	NotificationErrorOccurred  NotificationType = "error_occurred"
	NotificationSystemAlert    NotificationType = "system_alert"
)

// Priority orders notifications for downstream consumers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns the numeric ordering of a priority (low < medium < high).
// Unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// Notification is the stable shape handed to subscribers. It is a value:
// produced once by the normalizer, immutable afterwards, with no identity
// beyond its content.
type Notification struct {
	Type      NotificationType `json:"type"`
	Data      map[string]any   `json:"data"`
	Timestamp int64            `json:"timestamp"` // epoch milliseconds
	Priority  Priority         `json:"priority"`
}

// ============================================================================
// Connection Model
// ============================================================================

// ConnectionState represents the lifecycle state of a client.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	// StateDestroyed is terminal; a destroyed client never reconnects.
	StateDestroyed ConnectionState = "destroyed"
)

// ConnectionStatus is the externally observable connection snapshot.
type ConnectionStatus struct {
	Connected         bool `json:"connected"`
	ReconnectAttempts int  `json:"reconnectAttempts"`
	QueuedMessages    int  `json:"queuedMessages"`
}

// Handler signatures for the three subscriber sets.
type (
	// MessageHandler receives normalized notifications.
	MessageHandler func(Notification)
	// ConnectionHandler receives true on open and false on close or error.
	ConnectionHandler func(bool)
	// ErrorHandler receives informational errors: transport failures,
	// malformed inbound payloads, and retry exhaustion.
	ErrorHandler func(error)
)
