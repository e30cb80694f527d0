package tenant

import (
	"context"
	"errors"
	"fmt"
)

// Key for tenant ID in context
type contextKey string

const (
	organizationIDKey contextKey = "organizationID"
	requestIDKey      contextKey = "requestID"
)

// ErrOrganizationIDNotFound is returned when no organization ID is found in context
var ErrOrganizationIDNotFound = errors.New("organization ID not found in context")

// WithOrganizationID adds an organization ID to the context
func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationIDKey, organizationID)
}

// FromContext extracts the organization ID from the context
func FromContext(ctx context.Context) (string, error) {
	organizationID, ok := ctx.Value(organizationIDKey).(string)
	if !ok || organizationID == "" {
		return "", ErrOrganizationIDNotFound
	}
	return organizationID, nil
}

// MustFromContext extracts the organization ID from the context or panics
func MustFromContext(ctx context.Context) string {
	organizationID, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return organizationID
}

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}

// MustFromRequestIDContext extracts the request ID from the context or panics
func MustFromRequestIDContext(ctx context.Context) string {
	requestID, err := FromRequestIDContext(ctx)
	if err != nil {
		panic(err)
	}
	return requestID
}

// ValidateEventOrganization checks that an event's organization field matches
// the organization ID bound to the context. Events with an empty organization
// field skip the check; their scoping comes from the subject suffix.
func ValidateEventOrganization(ctx context.Context, organizationID string) error {
	if organizationID == "" {
		return nil
	}

	ctxOrgID, err := FromContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get organization ID: %w", err)
	}

	if organizationID != ctxOrgID {
		return fmt.Errorf("event organization (%s) does not match context organization (%s)", organizationID, ctxOrgID)
	}

	return nil
}
