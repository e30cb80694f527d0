package ingress

import (
	"encoding/base64"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// pubSubEnvelope is the Google Pub/Sub push wrapper. Data is base64 JSON
// carrying only {emailAddress, historyId}; the messages themselves are
// fetched by the sync service.
type pubSubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type gmailPushData struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// handleGmailPush triggers the Gmail sync inline for the notified mailbox.
// Unlike the Meta webhooks there is nothing to publish here; the sync
// service walks history and publishes canonical events itself.
func (s *Server) handleGmailPush(w http.ResponseWriter, r *http.Request) {
	const provider = model.PlatformGmail
	ctx := s.requestContext(r)
	log := logger.FromContext(ctx)

	body, err := readBody(r)
	if err != nil {
		observer.IncWebhookRequest(provider, "read_error")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var envelope pubSubEnvelope
	if err := utils.UnmarshalJSON(body, &envelope); err != nil || envelope.Message.Data == "" {
		log.Warn("Malformed Pub/Sub envelope", zap.Error(err))
		observer.IncWebhookRequest(provider, "malformed")
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(envelope.Message.Data)
	}
	if err != nil {
		log.Warn("Undecodable Pub/Sub data", zap.Error(err))
		observer.IncWebhookRequest(provider, "malformed")
		http.Error(w, "undecodable data", http.StatusBadRequest)
		return
	}

	var push gmailPushData
	if err := utils.UnmarshalJSON(decoded, &push); err != nil || push.EmailAddress == "" {
		log.Warn("Pub/Sub data missing email address", zap.Error(err))
		observer.IncWebhookRequest(provider, "malformed")
		http.Error(w, "missing email address", http.StatusBadRequest)
		return
	}

	log.Debug("Gmail push received",
		zap.String("email_address", push.EmailAddress),
		zap.Uint64("history_id", push.HistoryID),
	)

	if err := s.gmailSync.SyncByEmail(ctx, push.EmailAddress); err != nil {
		logFields := []zap.Field{
			zap.String("email_address", push.EmailAddress),
			zap.Error(err),
		}
		switch {
		case errors.Is(err, apperrors.ErrTokenRevoked):
			log.Warn("Gmail push for revoked mailbox", logFields...)
			observer.IncWebhookRequest(provider, "revoked")
			http.Error(w, "mailbox authorization revoked", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrNotFound):
			log.Warn("Gmail push for unknown mailbox", logFields...)
			observer.IncWebhookRequest(provider, "unknown_account")
			http.Error(w, "unknown mailbox", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrBadRequest):
			log.Warn("Gmail push rejected", logFields...)
			observer.IncWebhookRequest(provider, "rejected")
			http.Error(w, "mailbox inactive", http.StatusBadRequest)
		default:
			log.Error("Gmail sync failed on push", logFields...)
			observer.IncWebhookRequest(provider, "sync_error")
			http.Error(w, "sync failed", http.StatusInternalServerError)
		}
		return
	}

	observer.IncWebhookRequest(provider, "accepted")
	w.WriteHeader(http.StatusOK)
}
