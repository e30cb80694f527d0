package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Platform channel types. PlatformName on Contact and AppName on queue
// payloads use the same values.
const (
	PlatformWhatsApp  = "WHATSAPP"
	PlatformMessenger = "MESSENGER"
	PlatformGmail     = "GMAIL"
	PlatformWebchat   = "WEBCHAT"
)

// Platform is one messaging channel instance: a WhatsApp number, a Messenger
// page, a Gmail mailbox, or a webchat widget. It owns the vendor credentials
// and the webhook HMAC key. Identity is immutable for the lifetime of its
// conversations.
type Platform struct {
	ID               string         `json:"id" gorm:"primaryKey;type:text"`
	Name             string         `json:"name" gorm:"type:text" validate:"required,oneof=WHATSAPP MESSENGER GMAIL WEBCHAT"`
	LoginID          string         `json:"login_id" gorm:"column:login_id;uniqueIndex;type:text" validate:"required"` // phone_number_id / page id / mailbox address / widget id
	AppID            string         `json:"app_id,omitempty" gorm:"column:app_id;type:text"`
	SecretKey        string         `json:"-" gorm:"column:secret_key;type:text"` // webhook HMAC key
	AccessToken      string         `json:"-" gorm:"column:access_token;type:text"`
	LoginCredentials datatypes.JSON `json:"login_credentials,omitempty" gorm:"type:jsonb;column:login_credentials"`
	OrganizationID   string         `json:"organization_id" gorm:"column:organization_id;index" validate:"required"`
	Active           bool           `json:"active" gorm:"column:active;default:true"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Platform) TableName(namer schema.Namer) string {
	return namer.TableName("platforms")
}
