package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* Event represents a normalized webhook delivery in the system
 * Uses value semantics as it represents data, not behavior.
 * Immutable once parsed; owned by the request that produced it.
 */
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Field aliases used by the common webhook providers. Checked in order,
// first hit wins.
var (
	idFields        = []string{"id", "event_id", "eventId", "message_id", "uid"}
	typeFields      = []string{"type", "event_type", "event", "topic"}
	timestampFields = []string{"timestamp", "created_at", "created", "occurred_at"}
	payloadFields   = []string{"data", "payload", "object"}
)

/* ParseEvent decodes a raw JSON body into a normalized Event, tolerating
 * the field-naming conventions of different providers. A missing event id
 * falls back to a generated uuid; a missing or unparseable timestamp falls
 * back to the receipt time in UTC.
 */
func ParseEvent(source string, rawBody []byte) (Event, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return Event{}, fmt.Errorf("parsing webhook body: %w", err)
	}

	event := Event{
		ID:        firstString(body, idFields),
		Type:      firstString(body, typeFields),
		Timestamp: parseTimestamp(body),
		Version:   "1.0",
		Source:    source,
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if version, ok := body["version"].(string); ok && version != "" {
		event.Version = version
	}

	for _, field := range payloadFields {
		if payload, ok := body[field].(map[string]interface{}); ok {
			event.Payload = payload
			break
		}
	}
	if event.Payload == nil {
		event.Payload = body
	}

	return event, nil
}

func firstString(body map[string]interface{}, fields []string) string {
	for _, field := range fields {
		if value, ok := body[field].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func parseTimestamp(body map[string]interface{}) time.Time {
	for _, field := range timestampFields {
		switch value := body[field].(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				return ts
			}
		case float64:
			// unix seconds, the convention of Stripe-style providers
			return time.Unix(int64(value), 0).UTC()
		}
	}
	return time.Now().UTC()
}
