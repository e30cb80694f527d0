package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// IncomingMessage statuses.
const (
	IncomingStatusUnread    = "unread"
	IncomingStatusRead      = "read"
	IncomingStatusResponded = "responded"
)

// UserMessage statuses, in provider delivery order.
const (
	UserMessageStatusSentToServer = "sent_to_server"
	UserMessageStatusSent         = "sent"
	UserMessageStatusDelivered    = "delivered"
	UserMessageStatusRead         = "read"
	UserMessageStatusFailed       = "failed"
)

// IncomingMessage is an append-only record of one customer-originated event.
// ProviderMessageID carries the raw provider message id for correlation.
type IncomingMessage struct {
	ID                int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	ProviderMessageID string         `json:"message_id" gorm:"column:provider_message_id;index"`
	ConversationID    string         `json:"conversation_id" gorm:"column:conversation_id;index" validate:"required"`
	ContactID         string         `json:"contact_id" gorm:"column:contact_id;index" validate:"required"`
	PlatformID        string         `json:"platform_id" gorm:"column:platform_id;index" validate:"required"`
	OrganizationID    string         `json:"organization_id" gorm:"column:organization_id" validate:"required"`
	MessageType       string         `json:"message_type,omitempty" gorm:"column:message_type"` // text, image, video, audio, document, email
	MessageBody       string         `json:"message_body,omitempty" gorm:"column:message_body;type:text"`
	Subject           string         `json:"subject,omitempty" gorm:"column:subject;type:text"` // email only
	MediaURL          string         `json:"media_url,omitempty" gorm:"column:media_url;type:text"`
	Status            string         `json:"status" gorm:"type:text;default:unread" validate:"required,oneof=unread read responded"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"column:received_at"`
	CreatedAt         time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
	LastMetadata      datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (IncomingMessage) TableName(namer schema.Namer) string {
	return namer.TableName("incoming_messages")
}

// IncomingMessageUpdatableFields lists the columns a status correlation may touch.
func IncomingMessageUpdatableFields() []string {
	return []string{
		"status", "last_metadata",
	}
}

// UserMessage is an append-only record of one organization-originated send.
// ProviderMessageID is the id returned by the vendor send call and is the
// correlation key for later delivery-status webhooks.
type UserMessage struct {
	ID                 int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	ProviderMessageID  string         `json:"messageid" gorm:"column:provider_message_id;index"`
	ConversationID     string         `json:"conversation_id" gorm:"column:conversation_id;index"`
	ContactID          string         `json:"contact_id" gorm:"column:contact_id;index"`
	PlatformID         string         `json:"platform_id" gorm:"column:platform_id;index" validate:"required"`
	OrganizationID     string         `json:"organization_id" gorm:"column:organization_id" validate:"required"`
	ScheduledMessageID *int64         `json:"scheduled_message_id,omitempty" gorm:"column:scheduled_message_id;index"`
	MessageType        string         `json:"message_type,omitempty" gorm:"column:message_type"`
	MessageBody        string         `json:"message_body,omitempty" gorm:"column:message_body;type:text"`
	TemplateName       string         `json:"template_name,omitempty" gorm:"column:template_name;type:text"`
	TemplateParams     datatypes.JSON `json:"template_params,omitempty" gorm:"type:jsonb;column:template_params"` // snapshot of substituted values
	Status             string         `json:"status" gorm:"type:text;default:sent_to_server" validate:"required,oneof=sent_to_server sent delivered read failed"`
	StatusDetails      string         `json:"status_details,omitempty" gorm:"column:status_details;type:text"`
	SentAt             time.Time      `json:"sent_at" gorm:"column:sent_at"`
	CreatedAt          time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (UserMessage) TableName(namer schema.Namer) string {
	return namer.TableName("user_messages")
}

// UserMessageUpdatableFields lists the columns a status correlation may touch.
func UserMessageUpdatableFields() []string {
	return []string{
		"status", "status_details",
	}
}
