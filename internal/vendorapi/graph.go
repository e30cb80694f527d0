package vendorapi

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
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

// GraphClient talks to the Meta Graph API for both WhatsApp Cloud and
// Messenger channels. The platform row supplies the per-channel access
// token; the client only carries the shared base URL and timeout.
type GraphClient struct {
	httpClient *resty.Client
	provider   string // WHATSAPP or MESSENGER
}

// NewWhatsAppClient creates a Graph API client for WhatsApp Cloud sends.
func NewWhatsAppClient(baseURL string, timeout time.Duration) *GraphClient {
	return &GraphClient{
		httpClient: newHTTPClient(baseURL, timeout),
		provider:   model.PlatformWhatsApp,
	}
}

// NewMessengerClient creates a Graph API client for Messenger sends.
func NewMessengerClient(baseURL string, timeout time.Duration) *GraphClient {
	return &GraphClient{
		httpClient: newHTTPClient(baseURL, timeout),
		provider:   model.PlatformMessenger,
	}
}

type graphSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	MessageID string `json:"message_id"` // Messenger send API shape
}

type graphMediaResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// SendText delivers a text message through the Graph API.
func (c *GraphClient) SendText(ctx context.Context, platform *model.Platform, recipient, body string) (string, error) {
	log := logger.FromContext(ctx)
	start := utils.Now()

	var (
		url     string
		payload map[string]interface{}
	)
	if c.provider == model.PlatformWhatsApp {
		url = fmt.Sprintf("/%s/messages", platform.LoginID)
		payload = map[string]interface{}{
			"messaging_product": "whatsapp",
			"to":                recipient,
			"type":              "text",
			"text":              map[string]string{"body": body},
		}
	} else {
		url = fmt.Sprintf("/%s/messages", platform.LoginID)
		payload = map[string]interface{}{
			"recipient":      map[string]string{"id": recipient},
			"message":        map[string]string{"text": body},
			"messaging_type": "MESSAGE_TAG",
			"tag":            "ACCOUNT_UPDATE",
		}
	}

	var result graphSendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		SetBody(payload).
		SetResult(&result).
		Post(url)
	observer.ObserveVendorCallDuration(c.provider, "send_text", time.Since(start), err)

	if err != nil {
		log.Error("Graph API send request failed",
			zap.String("provider", c.provider),
			zap.String("channel", platform.LoginID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: graph send request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		log.Error("Graph API send returned an error",
			zap.String("provider", c.provider),
			zap.String("channel", platform.LoginID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("response_body", resp.String()),
		)
		return "", vendorError(c.provider, "send_text", resp.StatusCode(), resp.String())
	}

	providerMessageID := result.MessageID
	if len(result.Messages) > 0 {
		providerMessageID = result.Messages[0].ID
	}
	if providerMessageID == "" {
		return "", fmt.Errorf("%w: graph send response carried no message id", apperrors.ErrBadRequest)
	}

	log.Debug("Graph API send succeeded",
		zap.String("provider", c.provider),
		zap.String("provider_message_id", providerMessageID),
	)
	return providerMessageID, nil
}

// SendTemplate delivers a pre-approved WhatsApp template with positional
// body parameters. Messenger has no template API; those sends fall back to
// the rendered text body.
func (c *GraphClient) SendTemplate(ctx context.Context, platform *model.Platform, recipient, templateName, language string, bodyParams []string) (string, error) {
	if c.provider != model.PlatformWhatsApp {
		return c.SendText(ctx, platform, recipient, renderFallbackBody(templateName, bodyParams))
	}

	log := logger.FromContext(ctx)
	start := utils.Now()

	if language == "" {
		language = "en"
	}
	parameters := make([]map[string]string, 0, len(bodyParams))
	for _, param := range bodyParams {
		parameters = append(parameters, map[string]string{"type": "text", "text": param})
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "template",
		"template": map[string]interface{}{
			"name":     templateName,
			"language": map[string]string{"code": language},
			"components": []map[string]interface{}{
				{"type": "body", "parameters": parameters},
			},
		},
	}

	var result graphSendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		SetBody(payload).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/messages", platform.LoginID))
	observer.ObserveVendorCallDuration(c.provider, "send_template", time.Since(start), err)

	if err != nil {
		log.Error("Graph API template send request failed",
			zap.String("template_name", templateName),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: graph template send request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		log.Error("Graph API template send returned an error",
			zap.String("template_name", templateName),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("response_body", resp.String()),
		)
		return "", vendorError(c.provider, "send_template", resp.StatusCode(), resp.String())
	}
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return "", fmt.Errorf("%w: graph template send response carried no message id", apperrors.ErrBadRequest)
	}
	return result.Messages[0].ID, nil
}

// renderFallbackBody joins template parameters for providers without a
// template API.
func renderFallbackBody(templateName string, bodyParams []string) string {
	body := templateName
	for _, param := range bodyParams {
		body += " " + param
	}
	return body
}

// SendMedia delivers a media message referencing an already-uploaded media id.
func (c *GraphClient) SendMedia(ctx context.Context, platform *model.Platform, recipient, mediaID, mediaType, caption string) (string, error) {
	start := utils.Now()

	var payload map[string]interface{}
	if c.provider == model.PlatformWhatsApp {
		media := map[string]string{"id": mediaID}
		if caption != "" {
			media["caption"] = caption
		}
		payload = map[string]interface{}{
			"messaging_product": "whatsapp",
			"to":                recipient,
			"type":              mediaType,
			mediaType:           media,
		}
	} else {
		payload = map[string]interface{}{
			"recipient": map[string]string{"id": recipient},
			"message": map[string]interface{}{
				"attachment": map[string]interface{}{
					"type":    mediaType,
					"payload": map[string]interface{}{"attachment_id": mediaID},
				},
			},
		}
	}

	var result graphSendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		SetBody(payload).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/messages", platform.LoginID))
	observer.ObserveVendorCallDuration(c.provider, "send_media", time.Since(start), err)

	if err != nil {
		return "", fmt.Errorf("%w: graph media send request failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return "", vendorError(c.provider, "send_media", resp.StatusCode(), resp.String())
	}

	providerMessageID := result.MessageID
	if len(result.Messages) > 0 {
		providerMessageID = result.Messages[0].ID
	}
	if providerMessageID == "" {
		return "", fmt.Errorf("%w: graph media send response carried no message id", apperrors.ErrBadRequest)
	}
	return providerMessageID, nil
}

// UploadMedia pushes raw bytes to the provider and returns the media handle
// later referenced by SendMedia.
func (c *GraphClient) UploadMedia(ctx context.Context, platform *model.Platform, filename string, data []byte, contentType string) (string, error) {
	start := utils.Now()

	var result struct {
		ID string `json:"id"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetMultipartFormData(map[string]string{
			"messaging_product": "whatsapp",
			"type":              contentType,
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/media", platform.LoginID))
	observer.ObserveVendorCallDuration(c.provider, "upload_media", time.Since(start), err)

	if err != nil {
		return "", fmt.Errorf("%w: graph media upload failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return "", vendorError(c.provider, "upload_media", resp.StatusCode(), resp.String())
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: graph media upload response carried no media id", apperrors.ErrBadRequest)
	}
	return result.ID, nil
}

// MessageTemplate is one pre-approved vendor template definition.
type MessageTemplate struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

// FetchTemplates lists the business account's approved message templates.
// AppID carries the WhatsApp business account id the templates hang off.
func (c *GraphClient) FetchTemplates(ctx context.Context, platform *model.Platform) ([]MessageTemplate, error) {
	start := utils.Now()

	var result struct {
		Data []MessageTemplate `json:"data"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		SetResult(&result).
		Get(fmt.Sprintf("/%s/message_templates", platform.AppID))
	observer.ObserveVendorCallDuration(c.provider, "fetch_templates", time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("%w: graph template list failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return nil, vendorError(c.provider, "fetch_templates", resp.StatusCode(), resp.String())
	}
	return result.Data, nil
}

// DownloadMedia resolves a provider media reference to its bytes. WhatsApp
// hands out opaque media handles that need a two-step fetch: the handle
// resolves to a short-lived URL, then the URL serves the content. Messenger
// webhooks instead carry the CDN URL directly; those skip the lookup.
func (c *GraphClient) DownloadMedia(ctx context.Context, platform *model.Platform, mediaID string) ([]byte, string, string, error) {
	log := logger.FromContext(ctx)
	start := utils.Now()

	if strings.HasPrefix(mediaID, "http://") || strings.HasPrefix(mediaID, "https://") {
		return c.downloadFromURL(ctx, mediaID)
	}

	var meta graphMediaResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		SetResult(&meta).
		Get("/" + mediaID)
	if err != nil {
		observer.ObserveVendorCallDuration(c.provider, "download_media", time.Since(start), err)
		return nil, "", "", fmt.Errorf("%w: graph media lookup failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		observer.ObserveVendorCallDuration(c.provider, "download_media", time.Since(start), fmt.Errorf("status %d", resp.StatusCode()))
		return nil, "", "", vendorError(c.provider, "download_media", resp.StatusCode(), resp.String())
	}

	content, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(platform.AccessToken).
		Get(meta.URL)
	observer.ObserveVendorCallDuration(c.provider, "download_media", time.Since(start), err)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: graph media download failed: %w", apperrors.ErrTimeout, err)
	}
	if content.IsError() {
		return nil, "", "", vendorError(c.provider, "download_media", content.StatusCode(), content.String())
	}

	log.Debug("Downloaded provider media",
		zap.String("provider", c.provider),
		zap.String("media_id", mediaID),
		zap.Int("bytes", len(content.Body())),
	)
	return content.Body(), meta.MimeType, mediaID, nil
}

// downloadFromURL fetches attachment content straight from a provider CDN
// URL. The URL is already access-scoped, so the Graph token stays off the
// request.
func (c *GraphClient) downloadFromURL(ctx context.Context, mediaURL string) ([]byte, string, string, error) {
	start := utils.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(mediaURL)
	observer.ObserveVendorCallDuration(c.provider, "download_media", time.Since(start), err)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: media url download failed: %w", apperrors.ErrTimeout, err)
	}
	if resp.IsError() {
		return nil, "", "", vendorError(c.provider, "download_media", resp.StatusCode(), resp.String())
	}

	filename := "attachment"
	if parsed, parseErr := url.Parse(mediaURL); parseErr == nil {
		if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
			filename = base
		}
	}

	logger.FromContext(ctx).Debug("Downloaded provider media from url",
		zap.String("provider", c.provider),
		zap.String("filename", filename),
		zap.Int("bytes", len(resp.Body())),
	)
	return resp.Body(), resp.Header().Get("Content-Type"), filename, nil
}

var _ Sender = (*GraphClient)(nil)
