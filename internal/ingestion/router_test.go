package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"go.uber.org/zap/zaptest"
)

// MockHandler definition is in jetstream_test.go

func TestRouter_Register(t *testing.T) {
	router := NewRouter()
	mockHandler := new(MockHandler)

	handler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return mockHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	eventType := model.V1InboundMessage
	router.Register(eventType, handler)

	assert.NotNil(t, router.handlers[eventType], "Handler should be registered")
}

func TestRouter_RegisterDefault(t *testing.T) {
	router := NewRouter()
	mockHandler := new(MockHandler)

	handler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return mockHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	router.RegisterDefault(handler)

	assert.NotNil(t, router.defaultHandler, "Default handler should be registered")
}

func TestRouter_Route_ExactMatch(t *testing.T) {
	router := NewRouter()
	mockHandler := new(MockHandler)

	handler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return mockHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	eventType := model.V1InboundMessage
	router.Register(eventType, handler)

	rawEvent := []byte(`{"key":"value"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: string(eventType),
		MessageID:      "msg-123",
		OrganizationID: "org-1",
	}

	mockHandler.On("Handle", mock.Anything, eventType, metadata, rawEvent).Return(nil)

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	err := router.Route(ctx, metadata, rawEvent)

	assert.NoError(t, err)
	mockHandler.AssertExpectations(t)
}

func TestRouter_Route_SuffixedSubject(t *testing.T) {
	// Published subjects carry an organization-ID suffix; the router must
	// strip it back to the registered base type.
	router := NewRouter()
	mockHandler := new(MockHandler)

	handler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return mockHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	eventType := model.V1InboundStatus
	router.Register(eventType, handler)

	rawEvent := []byte(`{"key":"value"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: eventType.WithOrganization("org-1"),
		MessageID:      "msg-124",
		OrganizationID: "org-1",
	}

	mockHandler.On("Handle", mock.Anything, eventType, metadata, rawEvent).Return(nil)

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	err := router.Route(ctx, metadata, rawEvent)

	assert.NoError(t, err)
	mockHandler.AssertExpectations(t)
}

func TestRouter_Route_DefaultHandler(t *testing.T) {
	router := NewRouter()
	mockDefaultHandler := new(MockHandler)

	defaultHandler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return mockDefaultHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	// Register only the default handler
	router.RegisterDefault(defaultHandler)

	// MapToBaseEventType must fail for this subject to hit the default handler.
	unregisteredSubject := "invalid.subject.format"
	rawEvent := []byte(`{"key":"value"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: unregisteredSubject,
		MessageID:      "msg-456",
		OrganizationID: "org-2",
	}

	// The eventType passed to the default handler is derived by
	// MapToBaseEventType, which yields "" for an unknown subject.
	mockDefaultHandler.On("Handle", mock.Anything, model.EventType(""), metadata, rawEvent).Return(nil)

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	err := router.Route(ctx, metadata, rawEvent)

	assert.NoError(t, err)
	mockDefaultHandler.AssertExpectations(t)
}

func TestRouter_Route_NoHandler(t *testing.T) {
	// Router without any handlers drops the event without error
	router := NewRouter()

	unregisteredSubject := "another.invalid.subject"
	rawEvent := []byte(`{"key":"value"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: unregisteredSubject,
		MessageID:      "msg-789",
		OrganizationID: "org-3",
	}

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	err := router.Route(ctx, metadata, rawEvent)

	assert.NoError(t, err)
}

func TestRouter_Route_HandleError(t *testing.T) {
	router := NewRouter()
	mockHandler := new(MockHandler)

	handler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		return mockHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	eventType := model.V1InboundStatus
	router.Register(eventType, handler)

	rawEvent := []byte(`{"key":"value"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: string(eventType),
		MessageID:      "msg-123",
		OrganizationID: "org-1",
	}

	expectedErr := errors.New("handler error")
	mockHandler.On("Handle", mock.Anything, eventType, metadata, rawEvent).Return(expectedErr)

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	err := router.Route(ctx, metadata, rawEvent)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	mockHandler.AssertExpectations(t)
}

func TestRouter_Route_TenantContext(t *testing.T) {
	router := NewRouter()
	mockHandler := new(MockHandler)

	// Handler verifies the router stamped the organization ID into context
	handler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		organizationID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}

		if organizationID != metadata.OrganizationID {
			return errors.New("organization ID mismatch")
		}

		return mockHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	eventType := model.V1InboundMessage
	router.Register(eventType, handler)

	rawEvent := []byte(`{"key":"value"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: string(eventType),
		MessageID:      "msg-123",
		OrganizationID: "org-1",
	}

	mockHandler.On("Handle", mock.Anything, eventType, metadata, rawEvent).Return(nil)

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	err := router.Route(ctx, metadata, rawEvent)

	assert.NoError(t, err)
	mockHandler.AssertExpectations(t)
}

func TestRouter_Route_VersionParsing(t *testing.T) {
	router := NewRouter()
	mockHandler := new(MockHandler)

	// Handler verifies event type version is preserved through routing
	handler := func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		if eventType.GetVersion() != "v1" {
			return errors.New("incorrect version parsing")
		}

		return mockHandler.Handle(ctx, eventType, metadata, rawEvent)
	}

	eventType := model.V1InboundMessage
	router.Register(eventType, handler)

	rawEvent := []byte(`{"key":"value"}`)
	metadata := &model.MessageMetadata{
		MessageSubject: string(eventType),
		MessageID:      "msg-123",
		OrganizationID: "org-1",
	}

	mockHandler.On("Handle", mock.Anything, eventType, metadata, rawEvent).Return(nil)

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	err := router.Route(ctx, metadata, rawEvent)

	assert.NoError(t, err)
	mockHandler.AssertExpectations(t)
}
