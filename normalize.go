package auditstream

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Event Normalization
// ============================================================================

// mapping pairs the notification kind and priority a raw event type resolves
// to.
type mapping struct {
	kind     NotificationType
	priority Priority
}

// eventTable is the full vocabulary of recognized server event types. Raw
// types absent from this table and from livenessEvents degrade to a low
// priority system alert carrying the whole payload.
var eventTable = map[string]mapping{
	"status_update":            {NotificationStatusUpdate, PriorityLow},
	"council_initialized":      {NotificationStatusUpdate, PriorityLow},
	"document_audit_started":   {NotificationAuditStarted, PriorityMedium},
	"audit_started":            {NotificationAuditStarted, PriorityMedium},
	"document_audit_completed": {NotificationAuditCompleted, PriorityMedium},
	"audit_completed":          {NotificationAuditCompleted, PriorityMedium},
	"error":                    {NotificationErrorOccurred, PriorityHigh},
	"error_occurred":           {NotificationErrorOccurred, PriorityHigh},
	"system_alert":             {NotificationSystemAlert, PriorityMedium},
}

// livenessEvents are transport keepalive frames. They never reach
// subscribers; the client answers heartbeat and ping itself.
var livenessEvents = map[string]bool{
	"heartbeat":     true,
	"heartbeat_ack": true,
	"ping":          true,
	"pong":          true,
}

// Normalize converts a raw server frame into a Notification. It returns
// (nil, nil) for liveness frames and an error for malformed input: anything
// that is not a JSON object with a string "type" field.
func Normalize(raw []byte) (*Notification, error) {
	var evt map[string]any
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	return normalizeEvent(evt)
}

func normalizeEvent(evt map[string]any) (*Notification, error) {
	if evt == nil {
		return nil, fmt.Errorf("malformed event: not an object")
	}
	rawType, ok := evt["type"].(string)
	if !ok || rawType == "" {
		return nil, fmt.Errorf("malformed event: missing type")
	}

	if livenessEvents[rawType] {
		return nil, nil
	}

	n := &Notification{Timestamp: eventTimestamp(evt)}

	if m, ok := eventTable[rawType]; ok {
		n.Type = m.kind
		n.Priority = m.priority
		n.Data = dataWithoutType(evt)
		return n, nil
	}

	// Unknown but well-formed: surface it rather than drop it. The whole
	// payload rides along so nothing is lost.
	n.Type = NotificationSystemAlert
	n.Priority = PriorityLow
	n.Data = copyEvent(evt)
	return n, nil
}

// eventTimestamp passes a numeric "timestamp" field through verbatim and
// falls back to now when the field is absent or not a number. Sanity of the
// value is the schema check's job, not the normalizer's.
func eventTimestamp(evt map[string]any) int64 {
	if ts, ok := evt["timestamp"].(float64); ok {
		return int64(ts)
	}
	return time.Now().UnixMilli()
}

func dataWithoutType(evt map[string]any) map[string]any {
	data := make(map[string]any, len(evt))
	for k, v := range evt {
		if k == "type" {
			continue
		}
		data[k] = v
	}
	return data
}

func copyEvent(evt map[string]any) map[string]any {
	data := make(map[string]any, len(evt))
	for k, v := range evt {
		data[k] = v
	}
	return data
}
