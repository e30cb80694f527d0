package vendorapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// Sender delivers one organization-originated message through a provider.
// Implementations return the provider-assigned messageid used later to
// correlate delivery status callbacks.
type Sender interface {
	SendText(ctx context.Context, platform *model.Platform, recipient, body string) (string, error)
}

// Dispatcher routes sends to the provider client registered for the
// platform's name (WHATSAPP, MESSENGER, GMAIL, WEBCHAT).
type Dispatcher struct {
	senders map[string]Sender
}

// NewDispatcher creates a dispatcher over the given per-provider senders.
func NewDispatcher(senders map[string]Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

// SenderFor returns the sender registered for a platform name.
func (d *Dispatcher) SenderFor(platformName string) (Sender, error) {
	sender, ok := d.senders[platformName]
	if !ok {
		return nil, fmt.Errorf("%w: no sender registered for platform %s", apperrors.ErrBadRequest, platformName)
	}
	return sender, nil
}

// TemplateSender is implemented by providers with a vendor template API.
type TemplateSender interface {
	SendTemplate(ctx context.Context, platform *model.Platform, recipient, templateName, language string, bodyParams []string) (string, error)
}

// SendText dispatches to the sender for the platform's provider.
func (d *Dispatcher) SendText(ctx context.Context, platform *model.Platform, recipient, body string) (string, error) {
	sender, err := d.SenderFor(platform.Name)
	if err != nil {
		return "", err
	}
	return sender.SendText(ctx, platform, recipient, body)
}

// SendTemplate dispatches a template send to the platform's provider.
// Providers without a template API reject the call; callers fall back to a
// rendered text send.
func (d *Dispatcher) SendTemplate(ctx context.Context, platform *model.Platform, recipient, templateName, language string, bodyParams []string) (string, error) {
	sender, err := d.SenderFor(platform.Name)
	if err != nil {
		return "", err
	}
	templateSender, ok := sender.(TemplateSender)
	if !ok {
		return "", fmt.Errorf("%w: platform %s has no template API", apperrors.ErrBadRequest, platform.Name)
	}
	return templateSender.SendTemplate(ctx, platform, recipient, templateName, language, bodyParams)
}

// newHTTPClient builds the shared resty client for vendor calls.
func newHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
}

// vendorError maps a vendor HTTP response to the sentinel taxonomy so
// callers can decide between retry, drop and deactivate.
func vendorError(provider, operation string, statusCode int, body string) error {
	switch {
	case statusCode == 401 || statusCode == 403:
		return fmt.Errorf("%w: %s %s returned %d: %s", apperrors.ErrUnauthorized, provider, operation, statusCode, body)
	case statusCode == 404:
		return fmt.Errorf("%w: %s %s returned 404: %s", apperrors.ErrNotFound, provider, operation, body)
	case statusCode == 429 || statusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d: %s", apperrors.ErrTimeout, provider, operation, statusCode, body)
	default:
		return fmt.Errorf("%w: %s %s returned %d: %s", apperrors.ErrBadRequest, provider, operation, statusCode, body)
	}
}
