package usecase

import (
	"context"
	"fmt"

	"gorm.io/datatypes"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// RealtimeNotifier pushes lightweight notifications to the agent-facing
// realtime stream. Delivery is best-effort; the canonical state already
// lives in Postgres by the time a notification fires.
type RealtimeNotifier interface {
	NotifyMessage(ctx context.Context, payload model.RealtimeMessagePayload) error
	NotifyStatus(ctx context.Context, payload model.RealtimeStatusPayload) error
}

// MediaStore persists downloaded media and returns a serving URL.
type MediaStore interface {
	StoreInbound(ctx context.Context, organizationID, contactID, filename string, data []byte, contentType string) (string, error)
}

// MediaDownloader fetches provider-hosted media by its handle.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, platform *model.Platform, mediaID string) (data []byte, contentType, filename string, err error)
}

// ProfileCache tracks which contacts had their profile refreshed recently,
// so every inbound message does not turn into a profile write.
type ProfileCache interface {
	IsFresh(contactID string) bool
	MarkFresh(contactID string)
}

// EventService implements inbound message and status event processing
type EventService struct {
	contactRepo      storage.ContactRepo
	platformRepo     storage.PlatformRepo
	conversationRepo storage.ConversationRepo
	messageRepo      storage.MessageRepo
	notifier         RealtimeNotifier
	media            MediaStore
	downloader       MediaDownloader
	profileCache     ProfileCache
}

// NewEventService creates a new event service
func NewEventService(
	contactRepo storage.ContactRepo,
	platformRepo storage.PlatformRepo,
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	notifier RealtimeNotifier,
	media MediaStore,
	downloader MediaDownloader,
	profileCache ProfileCache,
) *EventService {
	return &EventService{
		contactRepo:      contactRepo,
		platformRepo:     platformRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		notifier:         notifier,
		media:            media,
		downloader:       downloader,
		profileCache:     profileCache,
	}
}

// validateEventOrganization validates that the payload's organization field
// matches the organization ID from context. An empty field skips the check.
func validateEventOrganization(ctx context.Context, organizationID string) error {
	if organizationID == "" {
		return nil
	}

	ctxOrgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get organization ID: %w", err)
	}

	if organizationID != ctxOrgID {
		return fmt.Errorf("payload organization (%s) does not match context organization (%s)", organizationID, ctxOrgID)
	}

	return nil
}

// lastMetadataJSON converts consumed-message metadata into the JSONB blob
// stamped onto persisted rows.
func lastMetadataJSON(metadata *model.LastMetadata) datatypes.JSON {
	if metadata == nil {
		return nil
	}
	metadataMap := map[string]interface{}{
		"consumer_sequence": metadata.ConsumerSequence,
		"stream_sequence":   metadata.StreamSequence,
		"stream":            metadata.Stream,
		"consumer":          metadata.Consumer,
		"domain":            metadata.Domain,
		"message_id":        metadata.MessageID,
		"message_subject":   metadata.MessageSubject,
		"organization_id":   metadata.OrganizationID,
		"processed_at":      utils.Now(),
	}
	return utils.MustMarshalJSON(metadataMap)
}
