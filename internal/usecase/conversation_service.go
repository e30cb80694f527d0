package usecase

import (
	"context"
	"errors"
	"time"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/validator"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
	"go.uber.org/zap"
)

// ProcessInboundMessage handles one customer-originated message from the
// inbound queue: it resolves the channel and contact, finds or opens the
// conversation, pulls provider media into object storage, persists the
// message row and pushes a realtime notification.
func (s *EventService) ProcessInboundMessage(ctx context.Context, payload model.InboundMessagePayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)
	start := utils.Now()

	// Validate input
	if err := validator.Validate(payload); err != nil {
		log.Error("Inbound message validation failed",
			zap.String("channel_id", payload.ChannelID),
			zap.String("provider_message_id", payload.ProviderMessageID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "inbound message validation failed")
	}

	// Extract organization ID
	organizationID, err := tenant.FromContext(ctx)
	if err != nil || organizationID == "" {
		log.Error("Failed to get organization ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get organization ID from context")
	}

	// Validate that the payload organization matches the context organization
	if err := validateEventOrganization(ctx, payload.OrganizationID); err != nil {
		log.Error("OrganizationID validation failed for inbound message",
			zap.String("channel_id", payload.ChannelID),
			zap.String("payload_organization_id", payload.OrganizationID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "inbound message OrganizationID mismatch")
	}

	// Resolve the receiving channel
	platform, err := s.platformRepo.FindByLoginID(ctx, payload.ChannelID)
	if err != nil {
		logFields := []zap.Field{
			zap.String("channel_id", payload.ChannelID),
			zap.Error(err),
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			// An unknown channel will never resolve on redelivery
			log.Warn("No active platform registered for channel", logFields...)
			return apperrors.NewFatal(err, "no active platform for channel %s", payload.ChannelID)
		}
		log.Warn("Potentially retryable error resolving platform", logFields...)
		return apperrors.NewRetryable(err, "retryable repository error resolving platform")
	}
	if platform.OrganizationID != organizationID {
		log.Error("Platform belongs to a different organization",
			zap.String("channel_id", payload.ChannelID),
			zap.String("platform_organization_id", platform.OrganizationID),
		)
		return apperrors.NewFatal(apperrors.ErrUnauthorized, "platform organization mismatch for channel %s", payload.ChannelID)
	}

	// Resolve or create the contact
	contact, err := s.contactRepo.GetOrCreate(ctx, model.Contact{
		Name:           payload.SenderName,
		Address:        payload.SenderID,
		PlatformName:   payload.AppName,
		OrganizationID: organizationID,
	})
	if err != nil {
		logFields := []zap.Field{
			zap.String("sender_id", payload.SenderID),
			zap.String("app_name", payload.AppName),
			zap.Error(err),
		}
		if errors.Is(err, apperrors.ErrDatabase) || errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, apperrors.ErrConflict) {
			log.Warn("Potentially retryable error resolving contact", logFields...)
			return apperrors.NewRetryable(err, "retryable repository error resolving contact")
		}
		log.Error("Fatal error resolving contact", logFields...)
		return apperrors.NewFatal(err, "fatal repository error resolving contact")
	}

	// Refresh the profile columns at most once per cache TTL
	if payload.SenderName != "" && s.profileCache != nil && !s.profileCache.IsFresh(contact.ID) {
		if err := s.contactRepo.UpdateProfile(ctx, contact.ID, payload.SenderName, contact.Avatar); err != nil {
			// Profile refresh is cosmetic; never fail the message over it
			log.Warn("Failed to refresh contact profile",
				zap.String("contact_id", contact.ID),
				zap.Error(err),
			)
		} else {
			s.profileCache.MarkFresh(contact.ID)
		}
	}

	// Find or open the conversation
	conversation, created, err := s.conversationRepo.GetOrOpen(ctx, contact.ID, platform.ID, model.OpenByCustomer)
	if err != nil {
		logFields := []zap.Field{
			zap.String("contact_id", contact.ID),
			zap.String("platform_id", platform.ID),
			zap.Error(err),
		}
		if errors.Is(err, apperrors.ErrDatabase) || errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, apperrors.ErrConflict) {
			log.Warn("Potentially retryable error opening conversation", logFields...)
			return apperrors.NewRetryable(err, "retryable repository error opening conversation")
		}
		log.Error("Fatal error opening conversation", logFields...)
		return apperrors.NewFatal(err, "fatal repository error opening conversation")
	}

	// Pull provider media into object storage
	mediaURL, err := s.resolveMedia(ctx, platform, contact.ID, organizationID, payload)
	if err != nil {
		return err // Already wrapped
	}

	receivedAt := utils.Now()
	if payload.Timestamp > 0 {
		receivedAt = utils.UnixToTime(payload.Timestamp)
	}

	msg := model.IncomingMessage{
		ProviderMessageID: payload.ProviderMessageID,
		ConversationID:    conversation.ID,
		ContactID:         contact.ID,
		PlatformID:        platform.ID,
		OrganizationID:    organizationID,
		MessageType:       payload.MsgType,
		MessageBody:       payload.MessageBody,
		Subject:           payload.Subject,
		MediaURL:          mediaURL,
		Status:            model.IncomingStatusUnread,
		ReceivedAt:        receivedAt,
		LastMetadata:      lastMetadataJSON(metadata),
	}

	saved, err := s.messageRepo.CreateIncoming(ctx, msg)
	if err != nil {
		logFields := []zap.Field{
			zap.String("provider_message_id", payload.ProviderMessageID),
			zap.String("conversation_id", conversation.ID),
			zap.Error(err),
		}
		if errors.Is(err, apperrors.ErrDuplicate) {
			// Redelivered event already persisted on a previous attempt
			log.Info("Incoming message already persisted, skipping", logFields...)
			return nil
		}
		if errors.Is(err, apperrors.ErrDatabase) || errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, apperrors.ErrConflict) {
			log.Warn("Potentially retryable error persisting incoming message", logFields...)
			return apperrors.NewRetryable(err, "retryable repository error persisting incoming message")
		}
		log.Error("Fatal error persisting incoming message", logFields...)
		return apperrors.NewFatal(err, "fatal repository error persisting incoming message")
	}

	// Best-effort realtime push; the persisted row is the source of truth
	if s.notifier != nil {
		notification := model.RealtimeMessagePayload{
			ID:                saved.ID,
			ConversationID:    conversation.ID,
			ReceivedTime:      saved.ReceivedAt,
			MessageType:       saved.MessageType,
			MessageBody:       saved.MessageBody,
			MediaURL:          saved.MediaURL,
			Status:            saved.Status,
			MsgFromType:       model.MsgFromCustomer,
			OrganizationID:    organizationID,
			CustomerName:      contact.Name,
			IsConversationNew: created,
		}
		if err := s.notifier.NotifyMessage(ctx, notification); err != nil {
			log.Warn("Failed to publish realtime message notification",
				zap.String("conversation_id", conversation.ID),
				zap.Int64("message_id", saved.ID),
				zap.Error(err),
			)
		}
	}

	log.Info("Successfully processed inbound message",
		zap.String("conversation_id", conversation.ID),
		zap.Int64("message_id", saved.ID),
		zap.Bool("conversation_opened", created),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// resolveMedia returns the serving URL for the message's media, if any.
// Provider-hosted media (MediaID) is downloaded and stored; attachments that
// arrive with a Path were already stored by the producer.
func (s *EventService) resolveMedia(ctx context.Context, platform *model.Platform, contactID, organizationID string, payload model.InboundMessagePayload) (string, error) {
	log := logger.FromContext(ctx)

	if payload.MediaID != "" && s.downloader != nil && s.media != nil {
		data, contentType, filename, err := s.downloader.DownloadMedia(ctx, platform, payload.MediaID)
		if err != nil {
			logFields := []zap.Field{
				zap.String("media_id", payload.MediaID),
				zap.String("app_name", payload.AppName),
				zap.Error(err),
			}
			if errors.Is(err, apperrors.ErrNotFound) {
				// Provider already expired the media; persist the message without it
				log.Warn("Provider media no longer available, persisting without media", logFields...)
				return "", nil
			}
			log.Warn("Potentially retryable error downloading provider media", logFields...)
			return "", apperrors.NewRetryable(err, "retryable error downloading provider media")
		}

		url, err := s.media.StoreInbound(ctx, organizationID, contactID, filename, data, contentType)
		if err != nil {
			log.Warn("Failed to store downloaded media",
				zap.String("media_id", payload.MediaID),
				zap.Error(err),
			)
			return "", apperrors.NewRetryable(err, "retryable error storing downloaded media")
		}
		return url, nil
	}

	// Gmail attachments are extracted and stored by the poller before publish
	if len(payload.Attachments) > 0 {
		return payload.Attachments[0].Path, nil
	}

	return "", nil
}
