package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

// GetOrCreate mocks the GetOrCreate method
func (m *ContactRepoMock) GetOrCreate(ctx context.Context, contact model.Contact) (*model.Contact, error) {
	args := m.Called(ctx, contact)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// UpdateProfile mocks the UpdateProfile method
func (m *ContactRepoMock) UpdateProfile(ctx context.Context, contactID, name, avatar string) error {
	args := m.Called(ctx, contactID, name, avatar)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ContactRepoMock) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// FindByAddress mocks the FindByAddress method
func (m *ContactRepoMock) FindByAddress(ctx context.Context, address, platformName string) (*model.Contact, error) {
	args := m.Called(ctx, address, platformName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// ListGroupMembers mocks the ListGroupMembers method
func (m *ContactRepoMock) ListGroupMembers(ctx context.Context, groupID string) ([]model.Contact, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

func (m *ContactRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- PlatformRepo Mock ---

// PlatformRepoMock mocks the PlatformRepo interface
type PlatformRepoMock struct {
	mock.Mock
}

// FindByLoginID mocks the FindByLoginID method
func (m *PlatformRepoMock) FindByLoginID(ctx context.Context, loginID string) (*model.Platform, error) {
	args := m.Called(ctx, loginID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Platform), args.Error(1)
}

// FindByID mocks the FindByID method
func (m *PlatformRepoMock) FindByID(ctx context.Context, id string) (*model.Platform, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Platform), args.Error(1)
}

// CreateLog mocks the CreateLog method
func (m *PlatformRepoMock) CreateLog(ctx context.Context, log model.PlatformLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *PlatformRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

// GetOrOpen mocks the GetOrOpen method
func (m *ConversationRepoMock) GetOrOpen(ctx context.Context, contactID, platformID, openBy string) (*model.Conversation, bool, error) {
	args := m.Called(ctx, contactID, platformID, openBy)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Conversation), args.Bool(1), args.Error(2)
}

// CreateClosed mocks the CreateClosed method
func (m *ConversationRepoMock) CreateClosed(ctx context.Context, contactID, platformID, closedReason string) (*model.Conversation, error) {
	args := m.Called(ctx, contactID, platformID, closedReason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// FindByID mocks the FindByID method
func (m *ConversationRepoMock) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// MarkActive mocks the MarkActive method
func (m *ConversationRepoMock) MarkActive(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ConversationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// CreateIncoming mocks the CreateIncoming method
func (m *MessageRepoMock) CreateIncoming(ctx context.Context, msg model.IncomingMessage) (*model.IncomingMessage, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IncomingMessage), args.Error(1)
}

// MarkIncomingResponded mocks the MarkIncomingResponded method
func (m *MessageRepoMock) MarkIncomingResponded(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

// CreateUser mocks the CreateUser method
func (m *MessageRepoMock) CreateUser(ctx context.Context, msg model.UserMessage) (*model.UserMessage, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserMessage), args.Error(1)
}

// FindUserByProviderID mocks the FindUserByProviderID method
func (m *MessageRepoMock) FindUserByProviderID(ctx context.Context, providerMessageID string) (*model.UserMessage, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserMessage), args.Error(1)
}

// UpdateUserStatus mocks the UpdateUserStatus method
func (m *MessageRepoMock) UpdateUserStatus(ctx context.Context, id int64, status, statusDetails string) error {
	args := m.Called(ctx, id, status, statusDetails)
	return args.Error(0)
}

func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ScheduleRepo Mock ---

// ScheduleRepoMock mocks the ScheduleRepo interface
type ScheduleRepoMock struct {
	mock.Mock
}

// ClaimDue mocks the ClaimDue method
func (m *ScheduleRepoMock) ClaimDue(ctx context.Context, dueBefore time.Time, limit int) ([]model.ScheduledMessage, error) {
	args := m.Called(ctx, dueBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScheduledMessage), args.Error(1)
}

// UpdateStatus mocks the UpdateStatus method
func (m *ScheduleRepoMock) UpdateStatus(ctx context.Context, id int64, status string, nextRun *time.Time) error {
	args := m.Called(ctx, id, status, nextRun)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ScheduleRepoMock) FindByID(ctx context.Context, id int64) (*model.ScheduledMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledMessage), args.Error(1)
}

// FindDatasourceRowByPhone mocks the FindDatasourceRowByPhone method
func (m *ScheduleRepoMock) FindDatasourceRowByPhone(ctx context.Context, datasourceID int64, phone string) (*model.DatasourceRow, error) {
	args := m.Called(ctx, datasourceID, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DatasourceRow), args.Error(1)
}

func (m *ScheduleRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- GmailRepo Mock ---

// GmailRepoMock mocks the GmailRepo interface
type GmailRepoMock struct {
	mock.Mock
}

// FindByEmail mocks the FindByEmail method
func (m *GmailRepoMock) FindByEmail(ctx context.Context, emailAddress string) (*model.GmailAccount, error) {
	args := m.Called(ctx, emailAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GmailAccount), args.Error(1)
}

// ListActive mocks the ListActive method
func (m *GmailRepoMock) ListActive(ctx context.Context) ([]model.GmailAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.GmailAccount), args.Error(1)
}

// UpdateTokens mocks the UpdateTokens method
func (m *GmailRepoMock) UpdateTokens(ctx context.Context, accountID, accessToken string, tokenExpiry time.Time) error {
	args := m.Called(ctx, accountID, accessToken, tokenExpiry)
	return args.Error(0)
}

// UpdateHistoryID mocks the UpdateHistoryID method
func (m *GmailRepoMock) UpdateHistoryID(ctx context.Context, accountID string, historyID uint64) error {
	args := m.Called(ctx, accountID, historyID)
	return args.Error(0)
}

// Deactivate mocks the Deactivate method
func (m *GmailRepoMock) Deactivate(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

// UpdateWatch mocks the UpdateWatch method
func (m *GmailRepoMock) UpdateWatch(ctx context.Context, accountID string, watchExpiry time.Time) error {
	args := m.Called(ctx, accountID, watchExpiry)
	return args.Error(0)
}

// ListExpiringWatches mocks the ListExpiringWatches method
func (m *GmailRepoMock) ListExpiringWatches(ctx context.Context, before time.Time) ([]model.GmailAccount, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.GmailAccount), args.Error(1)
}

// IsMessageProcessed mocks the IsMessageProcessed method
func (m *GmailRepoMock) IsMessageProcessed(ctx context.Context, accountID, messageID string) (bool, error) {
	args := m.Called(ctx, accountID, messageID)
	return args.Bool(0), args.Error(1)
}

// RecordProcessedMessage mocks the RecordProcessedMessage method
func (m *GmailRepoMock) RecordProcessedMessage(ctx context.Context, accountID, messageID string) error {
	args := m.Called(ctx, accountID, messageID)
	return args.Error(0)
}

func (m *GmailRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ExhaustedEventRepo Mock ---

// ExhaustedEventRepoMock mocks the ExhaustedEventRepo interface
type ExhaustedEventRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *ExhaustedEventRepoMock) Save(ctx context.Context, event model.ExhaustedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *ExhaustedEventRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- LeaseRepo Mock ---

// LeaseRepoMock mocks the LeaseRepo interface
type LeaseRepoMock struct {
	mock.Mock
}

// TryAcquire mocks the TryAcquire method
func (m *LeaseRepoMock) TryAcquire(ctx context.Context, lockID int64) (bool, error) {
	args := m.Called(ctx, lockID)
	return args.Bool(0), args.Error(1)
}

// Release mocks the Release method
func (m *LeaseRepoMock) Release(ctx context.Context, lockID int64) error {
	args := m.Called(ctx, lockID)
	return args.Error(0)
}
