package auditstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ============================================================================
// Notification Schema
// ============================================================================

// notificationSchema pins the notification envelope: the closed kind and
// priority sets, the required fields, and the millisecond timestamp.
const notificationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "data", "timestamp", "priority"],
  "properties": {
    "type": {
      "enum": ["status_update", "audit_started", "audit_completed", "error_occurred", "system_alert"]
    },
    "data": {"type": "object"},
    "timestamp": {"type": "integer", "minimum": 0},
    "priority": {"enum": ["low", "medium", "high"]}
  }
}`

var compileNotificationSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(notificationSchema)))
	if err != nil {
		return nil, fmt.Errorf("parse notification schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("notification.json", doc); err != nil {
		return nil, fmt.Errorf("add notification schema: %w", err)
	}
	sch, err := compiler.Compile("notification.json")
	if err != nil {
		return nil, fmt.Errorf("compile notification schema: %w", err)
	}
	return sch, nil
})

// ValidateNotification checks a normalized notification against the envelope
// schema. The normalizer should make failure impossible; this is the guard
// that proves it.
func ValidateNotification(n *Notification) error {
	sch, err := compileNotificationSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("reparse notification: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("notification schema: %w", err)
	}
	return nil
}
