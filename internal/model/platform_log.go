package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// PlatformLog outcomes.
const (
	DeliveryOutcomeSuccess = "success"
	DeliveryOutcomeFailure = "failure"
)

// PlatformLog is the append-only audit trail: one row per delivery attempt
// per recipient per schedule run.
type PlatformLog struct {
	ID                 int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID     string    `json:"organization_id" gorm:"column:organization_id;index" validate:"required"`
	PlatformID         string    `json:"platform_id" gorm:"column:platform_id" validate:"required"`
	ScheduledMessageID *int64    `json:"scheduled_message_id,omitempty" gorm:"column:scheduled_message_id;index"`
	ContactID          string    `json:"contact_id,omitempty" gorm:"column:contact_id;type:text"`
	Outcome            string    `json:"outcome" gorm:"type:text" validate:"required,oneof=success failure"`
	Details            string    `json:"details,omitempty" gorm:"column:details;type:text"`
	CreatedAt          time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (PlatformLog) TableName(namer schema.Namer) string {
	return namer.TableName("platform_logs")
}
