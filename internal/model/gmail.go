package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// GmailAccount holds one mailbox's OAuth credentials and sync cursor.
// HistoryID is the only watermark; it advances only after a full batch of
// history records has been processed and logged.
type GmailAccount struct {
	ID             string     `json:"id" gorm:"primaryKey;type:text"`
	OrganizationID string     `json:"organization_id" gorm:"column:organization_id;index" validate:"required"`
	EmailAddress   string     `json:"email_address" gorm:"column:email_address;uniqueIndex;type:text" validate:"required,email"`
	AccessToken    string     `json:"-" gorm:"column:access_token;type:text"`
	RefreshToken   string     `json:"-" gorm:"column:refresh_token;type:text"`
	TokenExpiry    time.Time  `json:"token_expiry" gorm:"column:token_expiry"`
	HistoryID      uint64     `json:"history_id" gorm:"column:history_id"`
	WatchExpiry    *time.Time `json:"watch_expiry,omitempty" gorm:"column:watch_expiry"`
	LastWatchTime  *time.Time `json:"last_watch_time,omitempty" gorm:"column:last_watch_time"`
	Active         bool       `json:"active" gorm:"column:active;default:true"`
	CreatedAt      time.Time  `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (GmailAccount) TableName(namer schema.Namer) string {
	return namer.TableName("gmail_accounts")
}

// TokenExpired reports whether the access token needs a refresh before use.
func (a *GmailAccount) TokenExpired(now time.Time) bool {
	return !a.TokenExpiry.After(now)
}

// ProcessedGmailMessage is the dedup ledger. Existence of a row means the
// message id has already been forwarded to the queue; rows are never deleted.
type ProcessedGmailMessage struct {
	ID             int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	GmailAccountID string    `json:"gmail_account_id" gorm:"column:gmail_account_id;uniqueIndex:idx_gmail_dedup;type:text" validate:"required"`
	MessageID      string    `json:"message_id" gorm:"column:message_id;uniqueIndex:idx_gmail_dedup;type:text" validate:"required"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (ProcessedGmailMessage) TableName(namer schema.Namer) string {
	return namer.TableName("processed_gmail_messages")
}
