package ingress

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// whatsappWebhook mirrors the WhatsApp Cloud API webhook envelope, trimmed
// to the fields this system consumes.
type whatsappWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []whatsappMessage `json:"messages"`
				Statuses []whatsappStatus  `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsappMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type whatsappMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *whatsappMedia `json:"image"`
	Video    *whatsappMedia `json:"video"`
	Audio    *whatsappMedia `json:"audio"`
	Document *whatsappMedia `json:"document"`
}

type whatsappStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors"`
}

// handleWhatsApp verifies and fans a WhatsApp Cloud webhook delivery into
// canonical events, one per message or status record.
func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	const provider = model.PlatformWhatsApp
	ctx := s.requestContext(r)
	log := logger.FromContext(ctx)

	body, err := readBody(r)
	if err != nil {
		observer.IncWebhookRequest(provider, "read_error")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var webhook whatsappWebhook
	if err := utils.UnmarshalJSON(body, &webhook); err != nil {
		log.Warn("Malformed WhatsApp webhook payload", zap.Error(err))
		observer.IncWebhookRequest(provider, "malformed")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	channelID := firstWhatsAppChannel(webhook)
	if channelID == "" {
		// Nothing addressable in the delivery; accept and drop.
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

	// The response is the acknowledgement boundary: answer 200 first in
	// spirit — everything below only logs on failure.
	w.WriteHeader(http.StatusOK)
	observer.IncWebhookRequest(provider, "accepted")

	for _, entry := range webhook.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, msg := range value.Messages {
				payload := model.InboundMessagePayload{
					ChannelID:         value.Metadata.PhoneNumberID,
					SenderID:          msg.From,
					SenderName:        names[msg.From],
					ProviderMessageID: msg.ID,
					MsgType:           msg.Type,
					MsgFromType:       model.MsgFromCustomer,
					AppName:           model.PlatformWhatsApp,
					OrganizationID:    platform.OrganizationID,
					Timestamp:         parseEpoch(msg.Timestamp),
				}
				if media := msg.media(); media != nil {
					payload.MediaID = media.ID
					payload.MessageBody = media.Caption
				} else {
					payload.MessageBody = msg.Text.Body
				}
				s.publishInbound(ctx, provider, payload)
			}

			for _, status := range value.Statuses {
				s.publishStatus(ctx, provider, model.StatusEventPayload{
					ChannelID:      value.Metadata.PhoneNumberID,
					RecipientID:    status.RecipientID,
					MessageID:      status.ID,
					MessageStatus:  status.Status,
					ErrorDetails:   joinStatusErrors(status),
					MsgFromType:    model.MsgFromOrg,
					AppName:        model.PlatformWhatsApp,
					OrganizationID: platform.OrganizationID,
					Timestamp:      parseEpoch(status.Timestamp),
				})
			}
		}
	}
}

// media returns the media reference for non-text message types.
func (m whatsappMessage) media() *whatsappMedia {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	default:
		return nil
	}
}

// firstWhatsAppChannel extracts the first phone_number_id in the delivery;
// one request always belongs to one channel.
func firstWhatsAppChannel(webhook whatsappWebhook) string {
	for _, entry := range webhook.Entry {
		for _, change := range entry.Changes {
			if id := change.Value.Metadata.PhoneNumberID; id != "" {
				return id
			}
		}
	}
	return ""
}

func joinStatusErrors(status whatsappStatus) string {
	if len(status.Errors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(status.Errors))
	for _, e := range status.Errors {
		parts = append(parts, e.Title)
	}
	return strings.Join(parts, "; ")
}

func parseEpoch(value string) int64 {
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
