package leanmq

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Stream field names shared by every entry.
const (
	fieldBody          = "body"
	fieldCreatedAt     = "created_at"
	fieldExpiresAt     = "expires_at"
	fieldDeliveryCount = "delivery_count"
	fieldError         = "_error"
	fieldSourceQueue   = "_source_queue"
	fieldMovedAt       = "_moved_at"
	fieldPath          = "_path"
)

// Message represents a message in a queue.
type Message struct {
	ID            string         // Stream entry ID (e.g., "1678886400123-0"), set on read
	Body          map[string]any // User payload, serialized as JSON in the stream
	CreatedAt     time.Time      // Producer wall clock at publish
	ExpiresAt     time.Time      // Absolute expiry deadline; zero means no expiration
	DeliveryCount int            // Times the message has been handed to a consumer

	// Dead letter annotations, set only on DLQ entries.
	Error       string    // Failure reason recorded on move
	SourceQueue string    // Queue the message was moved from
	MovedAt     time.Time // When the message was moved

	// Path is set on messages published through a webhook route.
	Path string
}

// Expired reports whether the message's deadline has passed as of now.
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !m.ExpiresAt.After(now)
}

// ToStreamFields converts the message to a flat map suitable for XADD.
// When CreatedAt is zero, created_at is written as the current time; the
// message itself is not modified.
func (m *Message) ToStreamFields() (map[string]any, error) {
	body, err := json.Marshal(m.Body)
	if err != nil {
		return nil, &MessageError{ID: m.ID, Err: err}
	}

	fields := make(map[string]any)
	fields[fieldBody] = string(body)

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	fields[fieldCreatedAt] = strconv.FormatInt(createdAt.UnixMilli(), 10)

	// Optional fields are only written when set.
	if !m.ExpiresAt.IsZero() {
		fields[fieldExpiresAt] = strconv.FormatInt(m.ExpiresAt.UnixMilli(), 10)
	}
	if m.DeliveryCount > 0 {
		fields[fieldDeliveryCount] = strconv.Itoa(m.DeliveryCount)
	}
	if m.Error != "" {
		fields[fieldError] = m.Error
	}
	if m.SourceQueue != "" {
		fields[fieldSourceQueue] = m.SourceQueue
	}
	if !m.MovedAt.IsZero() {
		fields[fieldMovedAt] = strconv.FormatInt(m.MovedAt.UnixMilli(), 10)
	}
	if m.Path != "" {
		fields[fieldPath] = m.Path
	}

	return fields, nil
}

// MessageFromStreamFields parses a Message from Redis stream fields.
//
// Returns a MessageError wrapping the cause for malformed entries. A missing
// delivery_count field is treated as 0.
func MessageFromStreamFields(id string, fields map[string]any) (*Message, error) {
	if len(fields) == 0 {
		return nil, &MessageError{ID: id, Err: fmt.Errorf("entry has no fields (trimmed)")}
	}

	msg := &Message{ID: id}

	bodyStr, err := stringField(fields, fieldBody)
	if err != nil {
		return nil, &MessageError{ID: id, Err: err}
	}
	if err := json.Unmarshal([]byte(bodyStr), &msg.Body); err != nil {
		return nil, &MessageError{ID: id, Err: fmt.Errorf("body is not valid JSON: %w", err)}
	}

	if ms, ok, err := msField(fields, fieldCreatedAt); err != nil {
		return nil, &MessageError{ID: id, Err: err}
	} else if ok {
		msg.CreatedAt = time.UnixMilli(ms).UTC()
	}

	if ms, ok, err := msField(fields, fieldExpiresAt); err != nil {
		return nil, &MessageError{ID: id, Err: err}
	} else if ok {
		msg.ExpiresAt = time.UnixMilli(ms).UTC()
	}

	if v, ok := fields[fieldDeliveryCount]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, &MessageError{ID: id, Err: fmt.Errorf("field '%s' is not a string", fieldDeliveryCount)}
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, &MessageError{ID: id, Err: fmt.Errorf("field '%s': %w", fieldDeliveryCount, err)}
		}
		msg.DeliveryCount = n
	}

	if v, ok := fields[fieldError]; ok {
		if s, ok := v.(string); ok {
			msg.Error = s
		}
	}
	if v, ok := fields[fieldSourceQueue]; ok {
		if s, ok := v.(string); ok {
			msg.SourceQueue = s
		}
	}
	if ms, ok, err := msField(fields, fieldMovedAt); err == nil && ok {
		msg.MovedAt = time.UnixMilli(ms).UTC()
	}
	if v, ok := fields[fieldPath]; ok {
		if s, ok := v.(string); ok {
			msg.Path = s
		}
	}

	return msg, nil
}

func stringField(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("missing required field '%s'", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field '%s' is not a string", name)
	}
	return s, nil
}

// msField reads an optional unix-millisecond timestamp field.
func msField(fields map[string]any, name string) (int64, bool, error) {
	v, ok := fields[name]
	if !ok {
		return 0, false, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, false, fmt.Errorf("field '%s' is not a string", name)
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("field '%s': %w", name, err)
	}
	return ms, true, nil
}
