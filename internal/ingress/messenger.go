package ingress

import (
	"net/http"

	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// messengerWebhook mirrors the Messenger Platform webhook envelope, trimmed
// to the fields this system consumes. Entry.ID is the page id, which is the
// channel's login_id.
type messengerWebhook struct {
	Entry []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Timestamp int64 `json:"timestamp"`
			Message   *struct {
				MID         string `json:"mid"`
				Text        string `json:"text"`
				IsEcho      bool   `json:"is_echo"`
				Attachments []struct {
					Type    string `json:"type"`
					Payload struct {
						URL string `json:"url"`
					} `json:"payload"`
				} `json:"attachments"`
			} `json:"message"`
			Delivery *struct {
				MIDs      []string `json:"mids"`
				Watermark int64    `json:"watermark"`
			} `json:"delivery"`
		} `json:"messaging"`
	} `json:"entry"`
}

// handleMessenger verifies and fans a Messenger webhook delivery into
// canonical events. Delivery receipts become one status event per mid; read
// receipts carry no mid and are dropped.
func (s *Server) handleMessenger(w http.ResponseWriter, r *http.Request) {
	const provider = model.PlatformMessenger
	ctx := s.requestContext(r)
	log := logger.FromContext(ctx)

	body, err := readBody(r)
	if err != nil {
		observer.IncWebhookRequest(provider, "read_error")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var webhook messengerWebhook
	if err := utils.UnmarshalJSON(body, &webhook); err != nil {
		log.Warn("Malformed Messenger webhook payload", zap.Error(err))
		observer.IncWebhookRequest(provider, "malformed")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	channelID := ""
	for _, entry := range webhook.Entry {
		if entry.ID != "" {
			channelID = entry.ID
			break
		}
	}
	if channelID == "" {
		observer.IncWebhookRequest(provider, "empty")
		w.WriteHeader(http.StatusOK)
		return
	}

	platform := s.verifyAndResolvePlatform(ctx, w, r, provider, channelID, body)
	if platform == nil {
		observer.IncWebhookRequest(provider, "rejected")
		return
	}
	ctx = tenant.WithOrganizationID(ctx, platform.OrganizationID)

	w.WriteHeader(http.StatusOK)
	observer.IncWebhookRequest(provider, "accepted")

	for _, entry := range webhook.Entry {
		for _, event := range entry.Messaging {
			switch {
			case event.Message != nil && !event.Message.IsEcho:
				payload := model.InboundMessagePayload{
					ChannelID:         entry.ID,
					SenderID:          event.Sender.ID,
					ProviderMessageID: event.Message.MID,
					MessageBody:       event.Message.Text,
					MsgType:           "text",
					MsgFromType:       model.MsgFromCustomer,
					AppName:           model.PlatformMessenger,
					OrganizationID:    platform.OrganizationID,
					Timestamp:         event.Timestamp / 1000, // ms epoch
				}
				if len(event.Message.Attachments) > 0 {
					att := event.Message.Attachments[0]
					payload.MsgType = att.Type
					payload.MediaID = att.Payload.URL
				}
				s.publishInbound(ctx, provider, payload)

			case event.Delivery != nil:
				for _, mid := range event.Delivery.MIDs {
					s.publishStatus(ctx, provider, model.StatusEventPayload{
						ChannelID:      entry.ID,
						RecipientID:    event.Sender.ID,
						MessageID:      mid,
						MessageStatus:  model.UserMessageStatusDelivered,
						MsgFromType:    model.MsgFromOrg,
						AppName:        model.PlatformMessenger,
						OrganizationID: platform.OrganizationID,
						Timestamp:      event.Timestamp / 1000,
					})
				}
			}
		}
	}
}
