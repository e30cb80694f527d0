package ingress

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/validator"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// webchatMessage is the widget's already-flat message shape; one request is
// one message.
type webchatMessage struct {
	WidgetID    string `json:"widget_id" validate:"required"`
	VisitorID   string `json:"visitor_id" validate:"required"`
	VisitorName string `json:"visitor_name,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	MessageBody string `json:"message_body" validate:"required"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// handleWebchat accepts one widget message. The widget authenticates with a
// bearer-style X-Webchat-Token matching the platform's secret key; there is
// no body signature because the widget is a first-party client.
func (s *Server) handleWebchat(w http.ResponseWriter, r *http.Request) {
	const provider = model.PlatformWebchat
	ctx := s.requestContext(r)
	log := logger.FromContext(ctx)

	body, err := readBody(r)
	if err != nil {
		observer.IncWebhookRequest(provider, "read_error")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var msg webchatMessage
	if err := utils.UnmarshalJSON(body, &msg); err != nil {
		log.Warn("Malformed webchat payload", zap.Error(err))
		observer.IncWebhookRequest(provider, "malformed")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if err := validator.Validate(msg); err != nil {
		log.Warn("Invalid webchat payload", zap.Error(err))
		observer.IncWebhookRequest(provider, "malformed")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	platform, err := s.platformRepo.FindByLoginID(ctx, msg.WidgetID)
	if err != nil {
		log.Warn("No platform for webchat widget",
			zap.String("widget_id", msg.WidgetID),
			zap.Error(err),
		)
		observer.IncWebhookSignatureFailure(provider)
		http.Error(w, "unknown widget", http.StatusForbidden)
		return
	}

	token := r.Header.Get("X-Webchat-Token")
	if platform.SecretKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(platform.SecretKey)) != 1 {
		log.Warn("Webchat token verification failed", zap.String("widget_id", msg.WidgetID))
		observer.IncWebhookSignatureFailure(provider)
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	ctx = tenant.WithOrganizationID(ctx, platform.OrganizationID)

	w.WriteHeader(http.StatusOK)
	observer.IncWebhookRequest(provider, "accepted")

	s.publishInbound(ctx, provider, model.InboundMessagePayload{
		ChannelID:         msg.WidgetID,
		SenderID:          msg.VisitorID,
		SenderName:        msg.VisitorName,
		ProviderMessageID: msg.MessageID,
		MessageBody:       msg.MessageBody,
		MsgType:           "text",
		MsgFromType:       model.MsgFromCustomer,
		AppName:           model.PlatformWebchat,
		OrganizationID:    platform.OrganizationID,
		Timestamp:         msg.Timestamp,
	})
}
