package storage

import (
	"context"
	"time"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// ContactRepo defines contact storage operations
type ContactRepo interface {
	GetOrCreate(ctx context.Context, contact model.Contact) (*model.Contact, error)
	UpdateProfile(ctx context.Context, contactID, name, avatar string) error
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindByAddress(ctx context.Context, address, platformName string) (*model.Contact, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]model.Contact, error)
	Close(ctx context.Context) error
}

// PlatformRepo defines platform (channel) storage operations
type PlatformRepo interface {
	FindByLoginID(ctx context.Context, loginID string) (*model.Platform, error)
	FindByID(ctx context.Context, id string) (*model.Platform, error)
	CreateLog(ctx context.Context, log model.PlatformLog) error
	Close(ctx context.Context) error
}

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	GetOrOpen(ctx context.Context, contactID, platformID, openBy string) (*model.Conversation, bool, error)
	CreateClosed(ctx context.Context, contactID, platformID, closedReason string) (*model.Conversation, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	MarkActive(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

// MessageRepo defines incoming and user message storage operations
type MessageRepo interface {
	CreateIncoming(ctx context.Context, msg model.IncomingMessage) (*model.IncomingMessage, error)
	MarkIncomingResponded(ctx context.Context, conversationID string) error
	CreateUser(ctx context.Context, msg model.UserMessage) (*model.UserMessage, error)
	FindUserByProviderID(ctx context.Context, providerMessageID string) (*model.UserMessage, error)
	UpdateUserStatus(ctx context.Context, id int64, status, statusDetails string) error
	Close(ctx context.Context) error
}

// ScheduleRepo defines campaign schedule and datasource storage operations
type ScheduleRepo interface {
	ClaimDue(ctx context.Context, dueBefore time.Time, limit int) ([]model.ScheduledMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string, nextRun *time.Time) error
	FindByID(ctx context.Context, id int64) (*model.ScheduledMessage, error)
	FindDatasourceRowByPhone(ctx context.Context, datasourceID int64, phone string) (*model.DatasourceRow, error)
	Close(ctx context.Context) error
}

// GmailRepo defines mailbox and dedup ledger storage operations
type GmailRepo interface {
	FindByEmail(ctx context.Context, emailAddress string) (*model.GmailAccount, error)
	ListActive(ctx context.Context) ([]model.GmailAccount, error)
	UpdateTokens(ctx context.Context, accountID, accessToken string, tokenExpiry time.Time) error
	UpdateHistoryID(ctx context.Context, accountID string, historyID uint64) error
	Deactivate(ctx context.Context, accountID string) error
	UpdateWatch(ctx context.Context, accountID string, watchExpiry time.Time) error
	ListExpiringWatches(ctx context.Context, before time.Time) ([]model.GmailAccount, error)
	IsMessageProcessed(ctx context.Context, accountID, messageID string) (bool, error)
	RecordProcessedMessage(ctx context.Context, accountID, messageID string) error
	Close(ctx context.Context) error
}

// ExhaustedEventRepo persists DLQ events whose retries ran out
type ExhaustedEventRepo interface {
	Save(ctx context.Context, event model.ExhaustedEvent) error
	Close(ctx context.Context) error
}

// LeaseRepo defines the advisory-lock lease used by singleton workers
type LeaseRepo interface {
	TryAcquire(ctx context.Context, lockID int64) (bool, error)
	Release(ctx context.Context, lockID int64) error
}
