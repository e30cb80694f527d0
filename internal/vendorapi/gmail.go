package vendorapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// GmailClientConfig carries the OAuth app identity and endpoints for the
// Gmail REST client.
type GmailClientConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	PubSubTopic  string
	Timeout      time.Duration
}

// GmailClient talks to the Gmail REST API on behalf of connected mailboxes.
type GmailClient struct {
	httpClient  *resty.Client
	tokenClient *resty.Client
	cfg         GmailClientConfig
}

// NewGmailClient creates a new Gmail REST client.
func NewGmailClient(cfg GmailClientConfig) *GmailClient {
	return &GmailClient{
		httpClient:  newHTTPClient(cfg.BaseURL, cfg.Timeout),
		tokenClient: newHTTPClient(cfg.TokenURL, cfg.Timeout),
		cfg:         cfg,
	}
}

// EmailAttachment references one attachment on a fetched message.
type EmailAttachment struct {
	Filename     string
	MimeType     string
	AttachmentID string
}

// EmailMessage is one fetched Gmail message with its extracted body.
type EmailMessage struct {
	ID          string
	ThreadID    string
	From        string
	Subject     string
	Body        string
	HistoryID   uint64
	Attachments []EmailAttachment
}

type gmailTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
}

type gmailHistoryResponse struct {
	History []struct {
		MessagesAdded []struct {
			Message struct {
				ID string `json:"id"`
			} `json:"message"`
		} `json:"messagesAdded"`
	} `json:"history"`
	HistoryID string `json:"historyId"`
}

type gmailMessagePart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Body     struct {
		Data         string `json:"data"`
		AttachmentID string `json:"attachmentId"`
	} `json:"body"`
	Headers []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Parts []gmailMessagePart `json:"parts"`
}

type gmailMessageResponse struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"threadId"`
	HistoryID string           `json:"historyId"`
	Payload   gmailMessagePart `json:"payload"`
}

type gmailWatchResponse struct {
	HistoryID  string `json:"historyId"`
	Expiration string `json:"expiration"` // epoch millis
}

type gmailSendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// RefreshAccessToken exchanges the stored refresh token for a fresh access
// token. A revoked grant returns apperrors.ErrTokenRevoked so the caller can
// deactivate the mailbox.
func (c *GmailClient) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	start := utils.Now()

	var result gmailTokenResponse
	resp, err := c.tokenClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"refresh_token": refreshToken,
			"grant_type":    "refresh_token",
		}).
		SetResult(&result).
		SetError(&result).
		Post("")
	observer.ObserveVendorCallDuration(model.PlatformGmail, "refresh_token", time.Since(start), err)

	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: gmail token refresh request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		if result.Error == "invalid_grant" {
			return "", time.Time{}, fmt.Errorf("%w: gmail refresh token rejected: %s", apperrors.ErrTokenRevoked, resp.String())
		}
		return "", time.Time{}, vendorError(model.PlatformGmail, "refresh_token", resp.StatusCode(), resp.String())
	}

	expiresIn := result.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	return result.AccessToken, utils.Now().Add(time.Duration(expiresIn) * time.Second), nil
}

// ListHistory returns the ids of messages added since the watermark, plus the
// new watermark. A 404 means the watermark is too old for Gmail's history
// window and surfaces as apperrors.ErrNotFound.
func (c *GmailClient) ListHistory(ctx context.Context, accessToken, emailAddress string, startHistoryID uint64) ([]string, uint64, error) {
	start := utils.Now()

	var result gmailHistoryResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParams(map[string]string{
			"startHistoryId": strconv.FormatUint(startHistoryID, 10),
			"historyTypes":   "messageAdded",
		}).
		SetResult(&result).
		Get(fmt.Sprintf("/users/%s/history", emailAddress))
	observer.ObserveVendorCallDuration(model.PlatformGmail, "list_history", time.Since(start), err)

	if err != nil {
		return nil, 0, fmt.Errorf("%w: gmail history request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return nil, 0, vendorError(model.PlatformGmail, "list_history", resp.StatusCode(), resp.String())
	}

	var messageIDs []string
	seen := make(map[string]struct{})
	for _, h := range result.History {
		for _, added := range h.MessagesAdded {
			id := added.Message.ID
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			messageIDs = append(messageIDs, id)
		}
	}

	newHistoryID, _ := strconv.ParseUint(result.HistoryID, 10, 64)
	return messageIDs, newHistoryID, nil
}

// GetMessage fetches one message in full and extracts its body, preferring
// the HTML part over plain text. A plain-text fallback is normalized first:
// quoted reply history stripped and long lines wrapped. A 404 surfaces as
// apperrors.ErrNotFound; replies can change message ids, so callers skip
// those.
func (c *GmailClient) GetMessage(ctx context.Context, accessToken, emailAddress, messageID string) (*EmailMessage, error) {
	start := utils.Now()

	var result gmailMessageResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("format", "full").
		SetResult(&result).
		Get(fmt.Sprintf("/users/%s/messages/%s", emailAddress, messageID))
	observer.ObserveVendorCallDuration(model.PlatformGmail, "get_message", time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("%w: gmail message request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return nil, vendorError(model.PlatformGmail, "get_message", resp.StatusCode(), resp.String())
	}

	msg := &EmailMessage{
		ID:       result.ID,
		ThreadID: result.ThreadID,
	}
	msg.HistoryID, _ = strconv.ParseUint(result.HistoryID, 10, 64)

	for _, h := range result.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = extractEmailAddress(h.Value)
		case "subject":
			msg.Subject = h.Value
		}
	}

	var htmlBody, plainBody string
	collectParts(result.Payload, &htmlBody, &plainBody, &msg.Attachments)
	if htmlBody != "" {
		msg.Body = htmlBody
	} else {
		msg.Body = normalizePlainBody(plainBody)
	}

	return msg, nil
}

// GetAttachment fetches one attachment's bytes.
func (c *GmailClient) GetAttachment(ctx context.Context, accessToken, emailAddress, messageID, attachmentID string) ([]byte, error) {
	start := utils.Now()

	var result struct {
		Data string `json:"data"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&result).
		Get(fmt.Sprintf("/users/%s/messages/%s/attachments/%s", emailAddress, messageID, attachmentID))
	observer.ObserveVendorCallDuration(model.PlatformGmail, "get_attachment", time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("%w: gmail attachment request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return nil, vendorError(model.PlatformGmail, "get_attachment", resp.StatusCode(), resp.String())
	}
	return decodeBase64URL(result.Data)
}

// Watch (re)registers the mailbox on the configured Pub/Sub topic and
// returns the new watermark and registration expiry.
func (c *GmailClient) Watch(ctx context.Context, accessToken, emailAddress string) (uint64, time.Time, error) {
	start := utils.Now()

	var result gmailWatchResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]interface{}{
			"topicName": c.cfg.PubSubTopic,
			"labelIds":  []string{"UNREAD", "IMPORTANT", "CATEGORY_PERSONAL", "INBOX"},
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/users/%s/watch", emailAddress))
	observer.ObserveVendorCallDuration(model.PlatformGmail, "watch", time.Since(start), err)

	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: gmail watch request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return 0, time.Time{}, vendorError(model.PlatformGmail, "watch", resp.StatusCode(), resp.String())
	}

	historyID, _ := strconv.ParseUint(result.HistoryID, 10, 64)
	expirationMs, _ := strconv.ParseInt(result.Expiration, 10, 64)
	return historyID, time.UnixMilli(expirationMs).UTC(), nil
}

// SendText sends a plain-text email through the mailbox tied to the platform.
// Platform.LoginID is the sender mailbox; Platform.AccessToken its OAuth token.
func (c *GmailClient) SendText(ctx context.Context, platform *model.Platform, recipient, body string) (string, error) {
	log := logger.FromContext(ctx)
	start := utils.Now()

	raw := base64.URLEncoding.EncodeToString([]byte(
		"To: " + recipient + "\r\n" +
			"Subject: \r\n" +
			"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
			"\r\n" +
			body,
	))

	var result gmailSendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		SetBody(map[string]string{"raw": raw}).
		SetResult(&result).
		Post(fmt.Sprintf("/users/%s/messages/send", platform.LoginID))
	observer.ObserveVendorCallDuration(model.PlatformGmail, "send_text", time.Since(start), err)

	if err != nil {
		log.Error("Gmail send request failed",
			zap.String("mailbox", platform.LoginID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: gmail send request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		log.Error("Gmail send returned an error",
			zap.String("mailbox", platform.LoginID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("response_body", resp.String()),
		)
		return "", vendorError(model.PlatformGmail, "send_text", resp.StatusCode(), resp.String())
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: gmail send response carried no message id", apperrors.ErrBadRequest)
	}
	return result.ID, nil
}

// collectParts walks the MIME tree collecting body candidates and attachments.
func collectParts(part gmailMessagePart, htmlBody, plainBody *string, attachments *[]EmailAttachment) {
	if part.Filename != "" && part.Body.AttachmentID != "" {
		*attachments = append(*attachments, EmailAttachment{
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			AttachmentID: part.Body.AttachmentID,
		})
	} else if part.Body.Data != "" {
		decoded, err := decodeBase64URL(part.Body.Data)
		if err == nil {
			switch part.MimeType {
			case "text/html":
				if *htmlBody == "" {
					*htmlBody = string(decoded)
				}
			case "text/plain":
				if *plainBody == "" {
					*plainBody = string(decoded)
				}
			}
		}
	}
	for _, child := range part.Parts {
		collectParts(child, htmlBody, plainBody, attachments)
	}
}

const plainBodyWrapWidth = 76

// normalizePlainBody cleans a text/plain fallback body: quoted reply history
// (lines starting with ">") is dropped, blank runs collapse to one, and long
// lines wrap at word boundaries.
func normalizePlainBody(body string) string {
	var kept []string
	blankRun := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			blankRun = true
			continue
		}
		if blankRun && len(kept) > 0 {
			kept = append(kept, "")
		}
		blankRun = false
		kept = append(kept, wrapLine(line, plainBodyWrapWidth)...)
	}
	return strings.Join(kept, "\n")
}

// wrapLine splits one line into chunks of at most width runes, breaking on
// spaces. A single word longer than width stays intact on its own line.
func wrapLine(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}
	var wrapped []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			wrapped = append(wrapped, current)
			current = word
			continue
		}
		current += " " + word
	}
	return append(wrapped, current)
}

// extractEmailAddress strips a display name from a From header value.
func extractEmailAddress(header string) string {
	if start := strings.LastIndex(header, "<"); start >= 0 {
		if end := strings.LastIndex(header, ">"); end > start {
			return header[start+1 : end]
		}
	}
	return strings.TrimSpace(header)
}

// decodeBase64URL handles Gmail's URL-safe base64 with or without padding.
func decodeBase64URL(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

var _ Sender = (*GmailClient)(nil)
