package vendorapi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// RealtimePublisher is the slice of the JetStream client the webchat sender
// needs: publish with headers, nothing else.
type RealtimePublisher interface {
	Publish(subject string, data []byte, headers map[string]string) error
}

// WebchatSender delivers messages to webchat visitors. Webchat has no external
// vendor API: the widget listens on the organization's realtime subject, so
// delivery is a JetStream publish and the message id is minted locally.
type WebchatSender struct {
	publisher RealtimePublisher
}

// NewWebchatSender creates a webchat sender over an established JetStream client.
func NewWebchatSender(publisher RealtimePublisher) *WebchatSender {
	return &WebchatSender{publisher: publisher}
}

// webchatDelivery is the payload pushed onto the realtime subject for the
// widget. WidgetID is the Platform.LoginID, VisitorID the recipient.
type webchatDelivery struct {
	MessageID   string `json:"message_id"`
	WidgetID    string `json:"widget_id"`
	VisitorID   string `json:"visitor_id"`
	MessageBody string `json:"message_body"`
	MsgFromType string `json:"msg_from_type"`
	Timestamp   int64  `json:"timestamp"`
}

// SendText publishes one text message for a webchat visitor and returns the
// locally minted message id.
func (s *WebchatSender) SendText(ctx context.Context, platform *model.Platform, recipient, body string) (string, error) {
	messageID := "wc." + uuid.NewString()
	payload := webchatDelivery{
		MessageID:   messageID,
		WidgetID:    platform.LoginID,
		VisitorID:   recipient,
		MessageBody: body,
		MsgFromType: model.MsgFromOrg,
		Timestamp:   utils.Now().Unix(),
	}
	data, err := utils.MarshalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling webchat delivery: %w", apperrors.ErrBadRequest, err)
	}

	subject := model.V1RealtimeMessage.WithOrganization(platform.OrganizationID)
	start := utils.Now()
	err = s.publisher.Publish(subject, data, map[string]string{"Nats-Msg-Id": messageID})
	observer.ObserveVendorCallDuration(model.PlatformWebchat, "send_text", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: publishing webchat delivery to %s: %w", apperrors.ErrNATS, subject, err)
	}

	logger.FromContext(ctx).Debug("Published webchat delivery",
		zap.String("subject", subject),
		zap.String("message_id", messageID),
		zap.String("widget_id", platform.LoginID),
	)
	return messageID, nil
}

var _ Sender = (*WebchatSender)(nil)
