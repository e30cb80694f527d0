package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

// GetOrCreate resolves a contact by provider identity, creating it when absent
func (a *ContactRepoAdapter) GetOrCreate(ctx context.Context, contact model.Contact) (*model.Contact, error) {
	return a.postgres.GetOrCreateContact(ctx, contact)
}

// UpdateProfile refreshes the provider-sourced profile columns
func (a *ContactRepoAdapter) UpdateProfile(ctx context.Context, contactID, name, avatar string) error {
	return a.postgres.UpdateContactProfile(ctx, contactID, name, avatar)
}

// FindByID finds a contact by ID
func (a *ContactRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

// FindByAddress finds a contact by provider address on one platform
func (a *ContactRepoAdapter) FindByAddress(ctx context.Context, address, platformName string) (*model.Contact, error) {
	return a.postgres.FindContactByAddress(ctx, address, platformName)
}

// ListGroupMembers returns the contacts belonging to a group
func (a *ContactRepoAdapter) ListGroupMembers(ctx context.Context, groupID string) ([]model.Contact, error) {
	return a.postgres.ListGroupContacts(ctx, groupID)
}

func (a *ContactRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// PlatformRepoAdapter adapts the PostgresRepo to the PlatformRepo interface
type PlatformRepoAdapter struct {
	postgres *PostgresRepo
}

// NewPlatformRepoAdapter creates a new platform repository adapter
func NewPlatformRepoAdapter(postgres *PostgresRepo) PlatformRepo {
	return &PlatformRepoAdapter{postgres: postgres}
}

// FindByLoginID resolves the channel that received a webhook
func (a *PlatformRepoAdapter) FindByLoginID(ctx context.Context, loginID string) (*model.Platform, error) {
	return a.postgres.FindPlatformByLoginID(ctx, loginID)
}

// FindByID finds a platform by ID
func (a *PlatformRepoAdapter) FindByID(ctx context.Context, id string) (*model.Platform, error) {
	return a.postgres.FindPlatformByID(ctx, id)
}

// CreateLog appends one delivery-attempt audit row
func (a *PlatformRepoAdapter) CreateLog(ctx context.Context, log model.PlatformLog) error {
	return a.postgres.CreatePlatformLog(ctx, log)
}

func (a *PlatformRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

// GetOrOpen returns the open conversation for the contact, creating one when absent
func (a *ConversationRepoAdapter) GetOrOpen(ctx context.Context, contactID, platformID, openBy string) (*model.Conversation, bool, error) {
	return a.postgres.GetOrOpenConversation(ctx, contactID, platformID, openBy)
}

// CreateClosed inserts a conversation that is born closed
func (a *ConversationRepoAdapter) CreateClosed(ctx context.Context, contactID, platformID, closedReason string) (*model.Conversation, error) {
	return a.postgres.CreateClosedConversation(ctx, contactID, platformID, closedReason)
}

// FindByID finds a conversation by ID
func (a *ConversationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationByID(ctx, id)
}

// MarkActive promotes a new conversation to active
func (a *ConversationRepoAdapter) MarkActive(ctx context.Context, id string) error {
	return a.postgres.MarkConversationActive(ctx, id)
}

func (a *ConversationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

// CreateIncoming appends one customer-originated message row
func (a *MessageRepoAdapter) CreateIncoming(ctx context.Context, msg model.IncomingMessage) (*model.IncomingMessage, error) {
	return a.postgres.CreateIncomingMessage(ctx, msg)
}

// MarkIncomingResponded flips unread/read messages in the conversation to responded
func (a *MessageRepoAdapter) MarkIncomingResponded(ctx context.Context, conversationID string) error {
	return a.postgres.MarkIncomingMessagesResponded(ctx, conversationID)
}

// CreateUser appends one organization-originated message row
func (a *MessageRepoAdapter) CreateUser(ctx context.Context, msg model.UserMessage) (*model.UserMessage, error) {
	return a.postgres.CreateUserMessage(ctx, msg)
}

// FindUserByProviderID correlates a provider status callback to its user message
func (a *MessageRepoAdapter) FindUserByProviderID(ctx context.Context, providerMessageID string) (*model.UserMessage, error) {
	return a.postgres.FindUserMessageByProviderID(ctx, providerMessageID)
}

// UpdateUserStatus records a delivery status transition
func (a *MessageRepoAdapter) UpdateUserStatus(ctx context.Context, id int64, status, statusDetails string) error {
	return a.postgres.UpdateUserMessageStatus(ctx, id, status, statusDetails)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ScheduleRepoAdapter adapts the PostgresRepo to the ScheduleRepo interface
type ScheduleRepoAdapter struct {
	postgres *PostgresRepo
}

// NewScheduleRepoAdapter creates a new schedule repository adapter
func NewScheduleRepoAdapter(postgres *PostgresRepo) ScheduleRepo {
	return &ScheduleRepoAdapter{postgres: postgres}
}

// ClaimDue atomically claims due schedules for this runner
func (a *ScheduleRepoAdapter) ClaimDue(ctx context.Context, dueBefore time.Time, limit int) ([]model.ScheduledMessage, error) {
	return a.postgres.ClaimDueSchedules(ctx, dueBefore, limit)
}

// UpdateStatus records the terminal outcome of a run
func (a *ScheduleRepoAdapter) UpdateStatus(ctx context.Context, id int64, status string, nextRun *time.Time) error {
	return a.postgres.UpdateScheduleStatus(ctx, id, status, nextRun)
}

// FindByID finds a schedule by ID
func (a *ScheduleRepoAdapter) FindByID(ctx context.Context, id int64) (*model.ScheduledMessage, error) {
	return a.postgres.FindScheduledMessageByID(ctx, id)
}

// FindDatasourceRowByPhone returns the substitution values for one recipient
func (a *ScheduleRepoAdapter) FindDatasourceRowByPhone(ctx context.Context, datasourceID int64, phone string) (*model.DatasourceRow, error) {
	return a.postgres.FindDatasourceRowByPhone(ctx, datasourceID, phone)
}

func (a *ScheduleRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// GmailRepoAdapter adapts the PostgresRepo to the GmailRepo interface
type GmailRepoAdapter struct {
	postgres *PostgresRepo
}

// NewGmailRepoAdapter creates a new gmail repository adapter
func NewGmailRepoAdapter(postgres *PostgresRepo) GmailRepo {
	return &GmailRepoAdapter{postgres: postgres}
}

// FindByEmail finds a mailbox by address
func (a *GmailRepoAdapter) FindByEmail(ctx context.Context, emailAddress string) (*model.GmailAccount, error) {
	return a.postgres.FindGmailAccountByEmail(ctx, emailAddress)
}

// ListActive returns every mailbox the poller should sync
func (a *GmailRepoAdapter) ListActive(ctx context.Context) ([]model.GmailAccount, error) {
	return a.postgres.ListActiveGmailAccounts(ctx)
}

// UpdateTokens persists a refreshed access token and its expiry
func (a *GmailRepoAdapter) UpdateTokens(ctx context.Context, accountID, accessToken string, tokenExpiry time.Time) error {
	return a.postgres.UpdateGmailTokens(ctx, accountID, accessToken, tokenExpiry)
}

// UpdateHistoryID advances the sync watermark
func (a *GmailRepoAdapter) UpdateHistoryID(ctx context.Context, accountID string, historyID uint64) error {
	return a.postgres.UpdateGmailHistoryID(ctx, accountID, historyID)
}

// Deactivate takes a mailbox out of the polling rotation
func (a *GmailRepoAdapter) Deactivate(ctx context.Context, accountID string) error {
	return a.postgres.DeactivateGmailAccount(ctx, accountID)
}

// UpdateWatch stamps the provider-side watch registration window
func (a *GmailRepoAdapter) UpdateWatch(ctx context.Context, accountID string, watchExpiry time.Time) error {
	return a.postgres.UpdateGmailWatch(ctx, accountID, watchExpiry)
}

// ListExpiringWatches returns mailboxes whose watch expires before the deadline
func (a *GmailRepoAdapter) ListExpiringWatches(ctx context.Context, before time.Time) ([]model.GmailAccount, error) {
	return a.postgres.ListExpiringGmailWatches(ctx, before)
}

// IsMessageProcessed checks the dedup ledger
func (a *GmailRepoAdapter) IsMessageProcessed(ctx context.Context, accountID, messageID string) (bool, error) {
	return a.postgres.IsGmailMessageProcessed(ctx, accountID, messageID)
}

// RecordProcessedMessage appends to the dedup ledger
func (a *GmailRepoAdapter) RecordProcessedMessage(ctx context.Context, accountID, messageID string) error {
	return a.postgres.RecordProcessedGmailMessage(ctx, accountID, messageID)
}

func (a *GmailRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ExhaustedEventRepoAdapter adapts the PostgresRepo to the ExhaustedEventRepo interface
type ExhaustedEventRepoAdapter struct {
	postgres *PostgresRepo
}

// NewExhaustedEventRepoAdapter creates a new exhausted event repository adapter
func NewExhaustedEventRepoAdapter(postgres *PostgresRepo) ExhaustedEventRepo {
	return &ExhaustedEventRepoAdapter{postgres: postgres}
}

// Save persists one retries-exhausted DLQ event
func (a *ExhaustedEventRepoAdapter) Save(ctx context.Context, event model.ExhaustedEvent) error {
	return a.postgres.SaveExhaustedEvent(ctx, event)
}

func (a *ExhaustedEventRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// LeaseRepoAdapter adapts the PostgresRepo advisory lock to the LeaseRepo
// interface. The lock-holding connection stays pinned inside the adapter for
// the lease lifetime; releasing through the pool would run pg_advisory_unlock
// on a different session and leave the lease held.
type LeaseRepoAdapter struct {
	postgres *PostgresRepo

	mu   sync.Mutex
	conn *sql.Conn
}

// NewLeaseRepoAdapter creates a new lease repository adapter
func NewLeaseRepoAdapter(postgres *PostgresRepo) LeaseRepo {
	return &LeaseRepoAdapter{postgres: postgres}
}

// TryAcquire attempts to take the session-scoped advisory lock
func (a *LeaseRepoAdapter) TryAcquire(ctx context.Context, lockID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return true, nil
	}
	conn, acquired, err := a.postgres.TryAdvisoryLock(ctx, lockID)
	if err != nil || !acquired {
		return false, err
	}
	a.conn = conn
	return true, nil
}

// Release releases the advisory lock on the connection that acquired it and
// returns that connection to the pool. A no-op when no lease is held.
func (a *LeaseRepoAdapter) Release(ctx context.Context, lockID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.postgres.AdvisoryUnlock(ctx, a.conn, lockID)
	if closeErr := a.conn.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("closing lease connection: %w", closeErr)
	}
	a.conn = nil
	return err
}

// Ensure adapters implement the interfaces
var _ ContactRepo = (*ContactRepoAdapter)(nil)
var _ PlatformRepo = (*PlatformRepoAdapter)(nil)
var _ ConversationRepo = (*ConversationRepoAdapter)(nil)
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ ScheduleRepo = (*ScheduleRepoAdapter)(nil)
var _ GmailRepo = (*GmailRepoAdapter)(nil)
var _ ExhaustedEventRepo = (*ExhaustedEventRepoAdapter)(nil)
var _ LeaseRepo = (*LeaseRepoAdapter)(nil)
