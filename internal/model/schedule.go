package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// ScheduledMessage statuses.
const (
	ScheduleStatusScheduled        = "scheduled"
	ScheduleStatusInProgress       = "in_progress"
	ScheduleStatusWarning          = "warning"
	ScheduleStatusScheduledWarning = "scheduled_warning"
	ScheduleStatusCompleted        = "completed"
	ScheduleStatusFailed           = "failed"
)

// Schedule frequencies. FrequencyOnce never recurs; the rest advance the
// scheduled time by a calendar-aware offset after a run.
const (
	FrequencyOnce       = -1
	FrequencyDaily      = 0
	FrequencyWeekly     = 1
	FrequencyMonthly    = 2
	FrequencyQuarterly  = 3
	FrequencyHalfYearly = 4
	FrequencyYearly     = 5
)

// Recipient selector kinds.
const (
	RecipientIndividual = "individual"
	RecipientGroup      = "group"
)

// ScheduledMessage is a campaign definition. Its lifecycle is driven solely
// by the scheduler: scheduled -> in_progress -> terminal or back to scheduled.
type ScheduledMessage struct {
	ID             int64          `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID string         `json:"organization_id" gorm:"column:organization_id;index" validate:"required"`
	PlatformID     string         `json:"platform_id" gorm:"column:platform_id" validate:"required"`
	RecipientType  string         `json:"recipient_type" gorm:"column:recipient_type;type:text" validate:"required,oneof=individual group"`
	ContactID      string         `json:"contact_id,omitempty" gorm:"column:contact_id;type:text"` // individual selector
	GroupID        string         `json:"group_id,omitempty" gorm:"column:group_id;type:text"`     // group selector
	Frequency      int            `json:"frequency" gorm:"column:frequency;default:-1" validate:"gte=-1,lte=5"`
	MessageType    string         `json:"message_type,omitempty" gorm:"column:message_type"` // text or template
	MessageBody    string         `json:"message_body,omitempty" gorm:"column:message_body;type:text"`
	TemplateName   string         `json:"template_name,omitempty" gorm:"column:template_name;type:text"`
	TemplateText   string         `json:"template_text,omitempty" gorm:"column:template_text;type:text"` // vendor template body with {{token}} placeholders
	DatasourceID   *int64         `json:"datasource_id,omitempty" gorm:"column:datasource_id"`
	Status         string         `json:"status" gorm:"type:text;default:scheduled" validate:"required,oneof=scheduled in_progress warning scheduled_warning completed failed"`
	ScheduledTime  time.Time      `json:"scheduled_time" gorm:"column:scheduled_time;index" validate:"required"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty" gorm:"column:last_run_at"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastMetadata   datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (ScheduledMessage) TableName(namer schema.Namer) string {
	return namer.TableName("scheduled_messages")
}

// IsRecurring reports whether the schedule runs again after a successful cycle.
func (s *ScheduledMessage) IsRecurring() bool {
	return s.Frequency > FrequencyOnce
}

// Datasource is a per-recipient substitution table uploaded alongside a
// campaign. Only the excel type exists today.
type Datasource struct {
	ID             int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID string    `json:"organization_id" gorm:"column:organization_id;index" validate:"required"`
	Name           string    `json:"name" gorm:"type:text"`
	Type           string    `json:"type" gorm:"type:text;default:excel"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Datasource) TableName(namer schema.Namer) string {
	return namer.TableName("datasources")
}

// DatasourceRow holds one recipient's substitution values, keyed by the exact
// phone number in the uploaded sheet.
type DatasourceRow struct {
	ID           int64             `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	DatasourceID int64             `json:"datasource_id" gorm:"column:datasource_id;index" validate:"required"`
	Phone        string            `json:"phone" gorm:"column:phone;index;type:text" validate:"required"`
	Values       datatypes.JSONMap `json:"values" gorm:"type:jsonb;column:values"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (DatasourceRow) TableName(namer schema.Namer) string {
	return namer.TableName("datasource_rows")
}

// ContactGroup is a named recipient set for group campaigns.
type ContactGroup struct {
	ID             string    `json:"id" gorm:"primaryKey;type:text"`
	OrganizationID string    `json:"organization_id" gorm:"column:organization_id;index" validate:"required"`
	Name           string    `json:"name" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (ContactGroup) TableName(namer schema.Namer) string {
	return namer.TableName("contact_groups")
}

// ContactGroupMember links a contact into a group.
type ContactGroupMember struct {
	ID        int64  `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	GroupID   string `json:"group_id" gorm:"column:group_id;index;type:text" validate:"required"`
	ContactID string `json:"contact_id" gorm:"column:contact_id;index;type:text" validate:"required"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (ContactGroupMember) TableName(namer schema.Namer) string {
	return namer.TableName("contact_group_members")
}
