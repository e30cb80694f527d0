package realtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/jetstream"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/usecase"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// Notifier publishes agent-facing notifications onto the realtime JetStream
// stream. Publishing is best-effort from the caller's point of view: the
// canonical row is already committed when a notification fires, so a failed
// publish costs a UI refresh, not data.
type Notifier struct {
	client jetstream.ClientInterface
	cfg    config.RealtimeNatsConfig
}

// NewNotifier creates a realtime notifier over an established JetStream client.
func NewNotifier(client jetstream.ClientInterface, cfg config.RealtimeNatsConfig) *Notifier {
	return &Notifier{client: client, cfg: cfg}
}

// SetupStream ensures the realtime stream exists. Subjects get a trailing
// wildcard so per-organization suffixes land in the same stream.
func (n *Notifier) SetupStream(ctx context.Context) error {
	log := logger.FromContext(ctx)

	subjects := make([]string, 0, len(n.cfg.SubjectList))
	for _, subject := range n.cfg.SubjectList {
		subjects = append(subjects, subject+".*")
	}

	streamConfig := jetstream.NewStreamConfig(n.cfg.Stream, subjects, int(n.cfg.MaxAge))
	if err := n.client.SetupStream(ctx, streamConfig); err != nil {
		return fmt.Errorf("setting up realtime stream %s: %w", n.cfg.Stream, err)
	}

	log.Info("Realtime stream ready",
		zap.String("stream", n.cfg.Stream),
		zap.Strings("subjects", subjects),
	)
	return nil
}

// NotifyMessage publishes a persisted customer message to the organization's
// realtime subject.
func (n *Notifier) NotifyMessage(ctx context.Context, payload model.RealtimeMessagePayload) error {
	data, err := utils.MarshalJSON(payload)
	if err != nil {
		return fmt.Errorf("marshaling realtime message payload: %w", err)
	}
	subject := model.V1RealtimeMessage.WithOrganization(payload.OrganizationID)
	if err := n.client.Publish(subject, data, nil); err != nil {
		return fmt.Errorf("publishing realtime message to %s: %w", subject, err)
	}

	logger.FromContext(ctx).Debug("Published realtime message notification",
		zap.String("subject", subject),
		zap.String("conversation_id", payload.ConversationID),
	)
	return nil
}

// NotifyStatus publishes a delivery status change to the organization's
// realtime subject.
func (n *Notifier) NotifyStatus(ctx context.Context, payload model.RealtimeStatusPayload) error {
	data, err := utils.MarshalJSON(payload)
	if err != nil {
		return fmt.Errorf("marshaling realtime status payload: %w", err)
	}
	subject := model.V1RealtimeStatus.WithOrganization(payload.OrganizationID)
	if err := n.client.Publish(subject, data, nil); err != nil {
		return fmt.Errorf("publishing realtime status to %s: %w", subject, err)
	}

	logger.FromContext(ctx).Debug("Published realtime status notification",
		zap.String("subject", subject),
		zap.String("message_id", payload.MessageID),
	)
	return nil
}

var _ usecase.RealtimeNotifier = (*Notifier)(nil)
