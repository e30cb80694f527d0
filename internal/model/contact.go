package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Contact represents an organization-scoped customer identity on one
// messaging channel. Identity is (address, platform_name, organization_id);
// a customer reachable on two channels is two contacts.
type Contact struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	Name           string         `json:"name,omitempty" gorm:"type:text"`
	Address        string         `json:"address" gorm:"type:text;uniqueIndex:idx_contact_identity" validate:"required"` // phone number or email address
	PlatformName   string         `json:"platform_name" gorm:"type:text;uniqueIndex:idx_contact_identity" validate:"required,oneof=WHATSAPP MESSENGER GMAIL WEBCHAT"`
	OrganizationID string         `json:"organization_id" gorm:"column:organization_id;uniqueIndex:idx_contact_identity" validate:"required"`
	Avatar         string         `json:"avatar,omitempty" gorm:"type:text"` // URL to profile picture
	ProfileSyncAt  *time.Time     `json:"profile_sync_at,omitempty" gorm:"column:profile_sync_at"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastMetadata   datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the table name for the Contact model, respecting the Namer.
func (Contact) TableName(namer schema.Namer) string {
	return namer.TableName("contacts")
}

// ContactUpdateColumns lists the columns refreshed from provider profile data.
func ContactUpdateColumns() []string {
	return []string{
		"name", "avatar", "profile_sync_at",
	}
}
