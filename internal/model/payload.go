package model

import (
	"encoding/json"
	"time"
)

// Message origin markers on canonical queue payloads.
const (
	MsgFromCustomer = "CUSTOMER"
	MsgFromOrg      = "ORG"
)

// --- Inbound message NATS payload --- //

// InboundMessagePayload is the canonical customer-originated event placed on
// the queue by the webhook ingress and the Gmail sync. ChannelID identifies
// the receiving Platform (phone_number_id, page id, mailbox address or widget
// id depending on AppName).
type InboundMessagePayload struct {
	ChannelID         string              `json:"channel_id,omitempty" validate:"required"`
	SenderID          string              `json:"sender_id,omitempty" validate:"required"` // customer phone / PSID / email address
	SenderName        string              `json:"sender_name,omitempty" validate:"omitempty"`
	ProviderMessageID string              `json:"message_id,omitempty" validate:"omitempty"`
	MessageBody       string              `json:"message_body,omitempty" validate:"omitempty"`
	Subject           string              `json:"subject,omitempty" validate:"omitempty"` // email only
	MsgType           string              `json:"msg_type,omitempty" validate:"required"`
	MediaID           string              `json:"media_id,omitempty" validate:"omitempty"` // provider media handle, downloaded by the consumer
	Attachments       []AttachmentPayload `json:"attachments,omitempty" validate:"omitempty,dive"`
	MsgFromType       string              `json:"msg_from_type,omitempty" validate:"required,oneof=CUSTOMER ORG"`
	AppName           string              `json:"app_name,omitempty" validate:"required,oneof=WHATSAPP MESSENGER GMAIL WEBCHAT"`
	OrganizationID    string              `json:"organization_id,omitempty" validate:"omitempty"`
	Timestamp         int64               `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

// AttachmentPayload references one extracted attachment.
type AttachmentPayload struct {
	Filename string `json:"filename,omitempty" validate:"required"`
	MimeType string `json:"mime_type,omitempty" validate:"omitempty"`
	Path     string `json:"path,omitempty" validate:"omitempty"` // temp path or object-store key
}

// --- Outbound status NATS payload --- //

// StatusEventPayload is the canonical organization-originated delivery status
// event. MessageID is the provider messageid of the UserMessage it correlates.
type StatusEventPayload struct {
	ChannelID      string `json:"channel_id,omitempty" validate:"required"`
	RecipientID    string `json:"recipient_id,omitempty" validate:"omitempty"`
	MessageID      string `json:"message_id,omitempty" validate:"required"`
	MessageStatus  string `json:"message_status,omitempty" validate:"required,oneof=sent delivered read failed"`
	ErrorDetails   string `json:"error_details,omitempty" validate:"omitempty"`
	MsgFromType    string `json:"msg_from_type,omitempty" validate:"required,oneof=CUSTOMER ORG"`
	AppName        string `json:"app_name,omitempty" validate:"required,oneof=WHATSAPP MESSENGER GMAIL WEBCHAT"`
	OrganizationID string `json:"organization_id,omitempty" validate:"omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

// --- Realtime notification payloads --- //

// RealtimeMessagePayload is pushed to the realtime subject after a customer
// message is persisted, so connected agent UIs can render it immediately.
type RealtimeMessagePayload struct {
	ID                int64     `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	ReceivedTime      time.Time `json:"received_time"`
	MessageType       string    `json:"message_type,omitempty"`
	MessageBody       string    `json:"message_body,omitempty"`
	MediaURL          string    `json:"media_url,omitempty"`
	Status            string    `json:"status,omitempty"`
	MsgFromType       string    `json:"msg_from_type,omitempty"`
	OrganizationID    string    `json:"organization_id,omitempty"`
	CustomerName      string    `json:"customer_name,omitempty"`
	IsConversationNew bool      `json:"is_conversation_new"`
}

// RealtimeStatusPayload is the lightweight ping pushed after a delivery
// status update.
type RealtimeStatusPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id"`
	Status         string `json:"status"`
	StatusDetails  string `json:"status_details,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// --- DLQ Payload --- //

// DLQPayload represents the structure of messages sent to the Dead Letter Queue.
type DLQPayload struct {
	SourceSubject   string          `json:"source_subject"`          // The original subject the message was published to
	Organization    string          `json:"organization"`            // The organization ID associated with the message
	OriginalPayload json.RawMessage `json:"original_payload"`        // The raw JSON payload of the original message
	Error           string          `json:"error"`                   // The full error message encountered during processing
	ErrorType       string          `json:"error_type"`              // Type of error ('fatal', 'retryable', 'unknown')
	RetryCount      uint64          `json:"retry_count"`             // How many times delivery was attempted (NumDelivered from NATS metadata)
	MaxRetry        int             `json:"max_retry"`               // The configured maximum delivery attempts for the consumer
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"` // Timestamp for the next scheduled retry attempt (set by DLQ worker)
	Timestamp       time.Time       `json:"ts"`                      // Timestamp when the message was sent to the DLQ
}
