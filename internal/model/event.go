package model

import (
	"strings"
	"time"
)

// EventType represents different types of events
type EventType string

// Common event type constants (with versioning). Published subjects carry an
// organization-ID suffix (e.g. "v1.inbound.message.org_abc"); consumers strip
// it back to the base type with MapToBaseEventType.
const (
	// Version 1 inbound event types
	V1InboundMessage EventType = "v1.inbound.message"
	V1InboundStatus  EventType = "v1.inbound.status"
	// Version 1 realtime notification types (published, never consumed here)
	V1RealtimeMessage EventType = "v1.realtime.message"
	V1RealtimeStatus  EventType = "v1.realtime.status"
)

// MapToBaseEventType attempts to map an input string (potentially with an
// organization-ID suffix) back to a known base EventType constant.
// It returns the mapped EventType and true if successful, or an empty
// EventType ("") and false if no mapping is found.
func MapToBaseEventType(input string) (EventType, bool) {
	// Direct match first: the input may already be a base type.
	switch EventType(input) {
	case V1InboundMessage, V1InboundStatus, V1RealtimeMessage, V1RealtimeStatus:
		return EventType(input), true
	}

	// Otherwise strip the last component after the final dot and retry.
	lastDotIndex := strings.LastIndex(input, ".")
	if lastDotIndex <= 0 {
		return "", false
	}

	base := input[:lastDotIndex]

	switch EventType(base) {
	case V1InboundMessage:
		return V1InboundMessage, true
	case V1InboundStatus:
		return V1InboundStatus, true
	case V1RealtimeMessage:
		return V1RealtimeMessage, true
	case V1RealtimeStatus:
		return V1RealtimeStatus, true
	default:
		return "", false
	}
}

// MessageMetadata carries the JetStream delivery metadata for one consumed message.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	OrganizationID   string
}

// ToLastMetadata converts MessageMetadata to LastMetadata
func (e MessageMetadata) ToLastMetadata() *LastMetadata {
	return &LastMetadata{
		ConsumerSequence: int64(e.ConsumerSequence),
		StreamSequence:   int64(e.StreamSequence),
		Stream:           e.Stream,
		Consumer:         e.Consumer,
		Domain:           e.Domain,
		MessageID:        e.MessageID,
		MessageSubject:   e.MessageSubject,
		OrganizationID:   e.OrganizationID,
	}
}

// GetVersion extracts the version from an event type
// Returns the version string (e.g., "v1") or an empty string if no version specified
func (e EventType) GetVersion() string {
	parts := strings.SplitN(string(e), ".", 2)
	if len(parts) < 2 {
		return ""
	}

	if len(parts[0]) >= 2 && parts[0][0] == 'v' {
		return parts[0]
	}

	return ""
}

// GetBaseType returns the event type without the version prefix
// For example: "v1.inbound.message" -> "inbound.message"
func (e EventType) GetBaseType() EventType {
	version := e.GetVersion()
	if version == "" {
		return e
	}

	return EventType(strings.TrimPrefix(string(e), version+"."))
}

// WithOrganization returns the fully-qualified subject for one organization.
// For example: "v1.inbound.message" with "org_abc" -> "v1.inbound.message.org_abc"
func (e EventType) WithOrganization(organizationID string) string {
	return string(e) + "." + organizationID
}

// LastMetadata represents the last consumed message metadata persisted on a row
type LastMetadata struct {
	ConsumerSequence int64  `json:"consumer_sequence"`
	StreamSequence   int64  `json:"stream_sequence"`
	Stream           string `json:"stream"`
	Consumer         string `json:"consumer"`
	Domain           string `json:"domain"`
	MessageID        string `json:"message_id"`
	MessageSubject   string `json:"message_subject"`
	OrganizationID   string `json:"organization_id"`
}
