package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Conversation statuses. At most one conversation per
// (contact, platform, organization) may be in a non-closed status; the
// partial unique index created at bootstrap enforces the invariant.
const (
	ConversationStatusNew    = "new"
	ConversationStatusActive = "active"
	ConversationStatusClosed = "closed"
)

// Conversation openers.
const (
	OpenByCustomer = "customer"
	OpenByAgent    = "agent"
)

// Conversation groups messages exchanged with one contact on one platform.
type Conversation struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	ContactID      string         `json:"contact_id" gorm:"column:contact_id;index" validate:"required"`
	PlatformID     string         `json:"platform_id" gorm:"column:platform_id;index" validate:"required"`
	OrganizationID string         `json:"organization_id" gorm:"column:organization_id" validate:"required"`
	Status         string         `json:"status" gorm:"type:text;default:new" validate:"required,oneof=new active closed"`
	OpenBy         string         `json:"open_by,omitempty" gorm:"column:open_by;type:text" validate:"omitempty,oneof=customer agent"`
	ClosedReason   string         `json:"closed_reason,omitempty" gorm:"column:closed_reason;type:text"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty" gorm:"column:closed_at"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastMetadata   datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Conversation) TableName(namer schema.Namer) string {
	return namer.TableName("conversations")
}

// IsOpen reports whether the conversation can still receive correlated messages.
func (c *Conversation) IsOpen() bool {
	return c.Status == ConversationStatusNew || c.Status == ConversationStatusActive
}
