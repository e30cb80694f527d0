package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/vendorapi"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// GmailAPI is the slice of the Gmail REST surface the sync service needs.
type GmailAPI interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error)
	ListHistory(ctx context.Context, accessToken, emailAddress string, startHistoryID uint64) ([]string, uint64, error)
	GetMessage(ctx context.Context, accessToken, emailAddress, messageID string) (*vendorapi.EmailMessage, error)
	GetAttachment(ctx context.Context, accessToken, emailAddress, messageID, attachmentID string) ([]byte, error)
	Watch(ctx context.Context, accessToken, emailAddress string) (uint64, time.Time, error)
}

// EventPublisher publishes normalized events onto the inbound stream.
type EventPublisher interface {
	Publish(subject string, data []byte, headers map[string]string) error
}

// GmailSyncService polls connected mailboxes for new messages and forwards
// them to the inbound stream as if they arrived through a webhook. History
// ids only move forward, and the dedup ledger keeps a message from being
// forwarded twice even when polling and push notifications overlap.
type GmailSyncService struct {
	gmailRepo      storage.GmailRepo
	api            GmailAPI
	publisher      EventPublisher
	media          MediaStore
	organizationID string
	interval       time.Duration
	watchRenewal   time.Duration

	mu           sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// NewGmailSyncService creates the mailbox sync service.
func NewGmailSyncService(
	gmailRepo storage.GmailRepo,
	api GmailAPI,
	publisher EventPublisher,
	media MediaStore,
	organizationID string,
	interval time.Duration,
	watchRenewal time.Duration,
) *GmailSyncService {
	return &GmailSyncService{
		gmailRepo:      gmailRepo,
		api:            api,
		publisher:      publisher,
		media:          media,
		organizationID: organizationID,
		interval:       interval,
		watchRenewal:   watchRenewal,
		accountLocks:   make(map[string]*sync.Mutex),
	}
}

// accountLock returns the per-mailbox mutex, so a push-triggered sync and the
// periodic poll never walk the same history window concurrently.
func (s *GmailSyncService) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[accountID] = lock
	}
	return lock
}

// Run polls all active mailboxes on the configured interval until the
// context is cancelled. Watch registrations are renewed on the same cadence.
func (s *GmailSyncService) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("Starting Gmail sync loop",
		zap.Duration("interval", s.interval),
		zap.String("organization_id", s.organizationID),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Gmail sync loop stopped")
			return
		case <-ticker.C:
			s.SyncAll(ctx)
			s.RenewWatches(ctx)
		}
	}
}

// SyncAll runs one sync pass over every active mailbox. Per-account failures
// are logged and skipped; one broken mailbox never stalls the rest.
func (s *GmailSyncService) SyncAll(ctx context.Context) {
	log := logger.FromContext(ctx)

	accounts, err := s.gmailRepo.ListActive(ctx)
	if err != nil {
		log.Error("Failed to list active Gmail accounts", zap.Error(err))
		return
	}

	for i := range accounts {
		account := accounts[i]
		if err := s.SyncAccount(ctx, &account); err != nil {
			log.Error("Gmail account sync failed",
				zap.String("gmail_account_id", account.ID),
				zap.String("email_address", account.EmailAddress),
				zap.Error(err),
			)
		}
	}
}

// SyncByEmail syncs one mailbox, looked up by address. Push notifications
// land here: the Pub/Sub payload names the mailbox, and the history walk
// picks up everything since the stored watermark.
func (s *GmailSyncService) SyncByEmail(ctx context.Context, emailAddress string) error {
	account, err := s.gmailRepo.FindByEmail(ctx, emailAddress)
	if err != nil {
		return err
	}
	if !account.Active {
		return fmt.Errorf("%w: gmail account %s is deactivated", apperrors.ErrBadRequest, emailAddress)
	}
	return s.SyncAccount(ctx, account)
}

// SyncAccount walks one mailbox's history from its watermark, forwards every
// unseen message, and advances the watermark once the whole batch is done.
func (s *GmailSyncService) SyncAccount(ctx context.Context, account *model.GmailAccount) error {
	lock := s.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx = tenant.WithOrganizationID(ctx, account.OrganizationID)
	log := logger.FromContext(ctx).With(
		zap.String("gmail_account_id", account.ID),
		zap.String("email_address", account.EmailAddress),
	)
	start := utils.Now()

	accessToken, err := s.ensureToken(ctx, account)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenRevoked) {
			// Revoked grants never recover; the mailbox stays parked until
			// the owner reconnects it. The error still surfaces so push
			// callers can answer 401.
			log.Warn("Gmail refresh token revoked, deactivating account")
			if deactivateErr := s.gmailRepo.Deactivate(ctx, account.ID); deactivateErr != nil {
				log.Error("Failed to deactivate Gmail account", zap.Error(deactivateErr))
				return deactivateErr
			}
			observer.IncGmailAccountsDeactivated()
		}
		return err
	}

	messageIDs, newHistoryID, err := s.api.ListHistory(ctx, accessToken, account.EmailAddress, account.HistoryID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The watermark fell out of Gmail's history window. Re-watch to
			// get a current historyId and resume from there; the gap is lost.
			log.Warn("Gmail history watermark expired, re-registering watch",
				zap.Uint64("history_id", account.HistoryID),
			)
			return s.renewWatch(ctx, account, accessToken)
		}
		return fmt.Errorf("listing gmail history: %w", err)
	}

	forwarded, deduped := 0, 0
	for _, messageID := range messageIDs {
		didForward, err := s.forwardMessage(ctx, account, accessToken, messageID)
		if err != nil {
			// Stop before advancing the watermark so the next pass retries
			// this message; everything already forwarded is in the ledger.
			return fmt.Errorf("forwarding gmail message %s: %w", messageID, err)
		}
		if didForward {
			forwarded++
		} else {
			deduped++
		}
	}

	if newHistoryID > account.HistoryID {
		if err := s.gmailRepo.UpdateHistoryID(ctx, account.ID, newHistoryID); err != nil {
			return fmt.Errorf("advancing gmail history watermark: %w", err)
		}
	}

	if forwarded > 0 || deduped > 0 {
		log.Info("Gmail account synced",
			zap.Int("forwarded", forwarded),
			zap.Int("deduped", deduped),
			zap.Uint64("history_id", newHistoryID),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return nil
}

// ensureToken returns a usable access token, refreshing and persisting it
// when the stored one is expired.
func (s *GmailSyncService) ensureToken(ctx context.Context, account *model.GmailAccount) (string, error) {
	if !account.TokenExpired(utils.Now()) {
		return account.AccessToken, nil
	}

	accessToken, expiry, err := s.api.RefreshAccessToken(ctx, account.RefreshToken)
	if err != nil {
		return "", err
	}
	if err := s.gmailRepo.UpdateTokens(ctx, account.ID, accessToken, expiry); err != nil {
		return "", fmt.Errorf("persisting refreshed gmail tokens: %w", err)
	}
	account.AccessToken = accessToken
	account.TokenExpiry = expiry
	return accessToken, nil
}

// forwardMessage fetches one message and publishes it to the inbound stream.
// Returns false when the message was skipped (already forwarded, self-sent,
// or gone from Gmail).
func (s *GmailSyncService) forwardMessage(ctx context.Context, account *model.GmailAccount, accessToken, messageID string) (bool, error) {
	log := logger.FromContext(ctx)

	processed, err := s.gmailRepo.IsMessageProcessed(ctx, account.ID, messageID)
	if err != nil {
		return false, fmt.Errorf("checking gmail dedup ledger: %w", err)
	}
	if processed {
		observer.IncGmailMessagesDeduped(account.ID)
		return false, nil
	}

	msg, err := s.api.GetMessage(ctx, accessToken, account.EmailAddress, messageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Replying to a message changes its id; the old id 404s. Record
			// it so the history walk never asks for it again.
			log.Debug("Gmail message gone, skipping", zap.String("message_id", messageID))
			if err := s.gmailRepo.RecordProcessedMessage(ctx, account.ID, messageID); err != nil {
				return false, fmt.Errorf("recording skipped gmail message: %w", err)
			}
			return false, nil
		}
		return false, err
	}

	// Outbound mail shows up in history too; only customer mail flows in.
	if msg.From == "" || msg.From == account.EmailAddress {
		if err := s.gmailRepo.RecordProcessedMessage(ctx, account.ID, messageID); err != nil {
			return false, fmt.Errorf("recording self-sent gmail message: %w", err)
		}
		return false, nil
	}

	attachments, err := s.storeAttachments(ctx, account, accessToken, msg)
	if err != nil {
		return false, err
	}

	payload := model.InboundMessagePayload{
		ChannelID:         account.EmailAddress,
		SenderID:          msg.From,
		SenderName:        msg.From,
		ProviderMessageID: msg.ID,
		MessageBody:       msg.Body,
		Subject:           msg.Subject,
		MsgType:           "email",
		Attachments:       attachments,
		MsgFromType:       model.MsgFromCustomer,
		AppName:           model.PlatformGmail,
		OrganizationID:    account.OrganizationID,
		Timestamp:         utils.Now().Unix(),
	}
	data, err := utils.MarshalJSON(payload)
	if err != nil {
		return false, fmt.Errorf("marshaling gmail inbound payload: %w", err)
	}

	subject := model.V1InboundMessage.WithOrganization(account.OrganizationID)
	headers := map[string]string{
		// Stream-level dedup as the second line behind the ledger.
		"Nats-Msg-Id": fmt.Sprintf("gmail:%s:%s", account.ID, msg.ID),
	}
	if err := s.publisher.Publish(subject, data, headers); err != nil {
		return false, fmt.Errorf("publishing gmail inbound event: %w", err)
	}

	if err := s.gmailRepo.RecordProcessedMessage(ctx, account.ID, messageID); err != nil {
		return false, fmt.Errorf("recording forwarded gmail message: %w", err)
	}
	observer.IncGmailMessagesForwarded(account.ID)
	return true, nil
}

// storeAttachments pulls each attachment's bytes and parks them in the media
// store, so the consumer only sees stable URLs.
func (s *GmailSyncService) storeAttachments(ctx context.Context, account *model.GmailAccount, accessToken string, msg *vendorapi.EmailMessage) ([]model.AttachmentPayload, error) {
	if len(msg.Attachments) == 0 || s.media == nil {
		return nil, nil
	}

	log := logger.FromContext(ctx)
	attachments := make([]model.AttachmentPayload, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		data, err := s.api.GetAttachment(ctx, accessToken, account.EmailAddress, msg.ID, att.AttachmentID)
		if err != nil {
			return nil, fmt.Errorf("fetching gmail attachment %s: %w", att.Filename, err)
		}
		url, err := s.media.StoreInbound(ctx, account.OrganizationID, msg.From, att.Filename, data, att.MimeType)
		if err != nil {
			return nil, fmt.Errorf("storing gmail attachment %s: %w", att.Filename, err)
		}
		log.Debug("Stored Gmail attachment",
			zap.String("message_id", msg.ID),
			zap.String("filename", att.Filename),
			zap.Int("bytes", len(data)),
		)
		attachments = append(attachments, model.AttachmentPayload{
			Filename: att.Filename,
			MimeType: att.MimeType,
			Path:     url,
		})
	}
	return attachments, nil
}

// RenewWatches re-registers every mailbox whose push registration is missing
// or expiring inside the renewal window.
func (s *GmailSyncService) RenewWatches(ctx context.Context) {
	log := logger.FromContext(ctx)

	accounts, err := s.gmailRepo.ListExpiringWatches(ctx, utils.Now().Add(s.watchRenewal))
	if err != nil {
		log.Error("Failed to list expiring Gmail watches", zap.Error(err))
		return
	}

	for i := range accounts {
		account := accounts[i]
		accountCtx := tenant.WithOrganizationID(ctx, account.OrganizationID)
		accessToken, err := s.ensureToken(accountCtx, &account)
		if err != nil {
			log.Error("Failed to refresh token for watch renewal",
				zap.String("gmail_account_id", account.ID),
				zap.Error(err),
			)
			continue
		}
		if err := s.renewWatch(accountCtx, &account, accessToken); err != nil {
			log.Error("Failed to renew Gmail watch",
				zap.String("gmail_account_id", account.ID),
				zap.Error(err),
			)
		}
	}
}

// renewWatch re-registers one mailbox and fast-forwards its watermark to the
// historyId the watch call returns.
func (s *GmailSyncService) renewWatch(ctx context.Context, account *model.GmailAccount, accessToken string) error {
	log := logger.FromContext(ctx)

	historyID, expiry, err := s.api.Watch(ctx, accessToken, account.EmailAddress)
	if err != nil {
		return fmt.Errorf("registering gmail watch: %w", err)
	}
	if err := s.gmailRepo.UpdateWatch(ctx, account.ID, expiry); err != nil {
		return fmt.Errorf("persisting gmail watch expiry: %w", err)
	}
	if historyID > account.HistoryID {
		if err := s.gmailRepo.UpdateHistoryID(ctx, account.ID, historyID); err != nil {
			return fmt.Errorf("advancing gmail history watermark after watch: %w", err)
		}
		account.HistoryID = historyID
	}

	log.Info("Gmail watch renewed",
		zap.String("gmail_account_id", account.ID),
		zap.Uint64("history_id", historyID),
		zap.Time("watch_expiry", expiry),
	)
	return nil
}
