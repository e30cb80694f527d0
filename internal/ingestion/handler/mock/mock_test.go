package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/ingestion/handler"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"go.uber.org/zap/zaptest"
)

func init() {
	// Initialize logger for tests
	logger.Log = zaptest.NewLogger(nil).Named("test")
}

// Sample test data
var (
	testOrgID     = "org-1"
	testChannelID = "15550001111"
	testMsgID     = "wamid.test-123"
)

// Utility function to create test context and metadata
func setupTest(t *testing.T) (context.Context, *model.MessageMetadata) {
	ctx := context.WithValue(context.Background(), "test", t.Name())
	ctx = logger.WithLogger(ctx, zaptest.NewLogger(t))

	metadata := &model.MessageMetadata{
		MessageID:        testMsgID,
		MessageSubject:   "v1.inbound.message",
		OrganizationID:   testOrgID,
		StreamSequence:   1,
		ConsumerSequence: 1,
	}

	return ctx, metadata
}

// TestMockInboundHandler demonstrates how to use the MockInboundHandler
func TestMockInboundHandler(t *testing.T) {
	mockHandler := new(MockInboundHandler)

	ctx, metadata := setupTest(t)
	eventType := model.V1InboundMessage
	rawEvent := []byte(`{"channel_id":"15550001111","sender_id":"628111","msg_type":"text"}`)

	mockHandler.On("HandleEvent", mock.Anything, eventType, metadata, rawEvent).Return(nil)

	err := mockHandler.HandleEvent(ctx, eventType, metadata, rawEvent)

	assert.NoError(t, err)
	mockHandler.AssertExpectations(t)
}

// TestMockStatusHandler demonstrates how to use the MockStatusHandler
func TestMockStatusHandler(t *testing.T) {
	mockHandler := new(MockStatusHandler)

	ctx, metadata := setupTest(t)
	metadata.MessageSubject = "v1.inbound.status"
	eventType := model.V1InboundStatus
	rawEvent := []byte(`{"channel_id":"15550001111","message_id":"wamid.test-123","message_status":"delivered"}`)

	mockHandler.On("HandleEvent", mock.Anything, eventType, metadata, rawEvent).Return(nil)

	err := mockHandler.HandleEvent(ctx, eventType, metadata, rawEvent)

	assert.NoError(t, err)
	mockHandler.AssertExpectations(t)
}

// TestMockConversationServiceWithHandler tests a real handler with a mock service
func TestMockConversationServiceWithHandler(t *testing.T) {
	mockService := new(MockConversationService)

	realHandler := handler.NewInboundHandler(mockService)

	ctx, metadata := setupTest(t)
	eventType := model.V1InboundMessage
	rawEvent := []byte(`{"channel_id":"15550001111","sender_id":"628111","message_id":"wamid.test-123","message_body":"hello","msg_type":"text","msg_from_type":"CUSTOMER","app_name":"WHATSAPP"}`)

	mockService.On("ProcessInboundMessage", mock.Anything, mock.AnythingOfType("model.InboundMessagePayload"), mock.AnythingOfType("*model.LastMetadata")).
		Run(func(args mock.Arguments) {
			actual := args.Get(1).(model.InboundMessagePayload)
			require.Equal(t, testChannelID, actual.ChannelID)
			assert.Equal(t, testMsgID, actual.ProviderMessageID)
			// OrganizationID is enriched from metadata when the payload omits it
			assert.Equal(t, testOrgID, actual.OrganizationID)
		}).
		Return(nil)

	err := realHandler.HandleEvent(ctx, eventType, metadata, rawEvent)

	assert.NoError(t, err)
	mockService.AssertExpectations(t)
}

// TestMockStatusServiceWithHandler tests a real handler with a mock service
func TestMockStatusServiceWithHandler(t *testing.T) {
	mockService := new(MockStatusService)

	realHandler := handler.NewStatusHandler(mockService)

	ctx, metadata := setupTest(t)
	metadata.MessageSubject = "v1.inbound.status"
	eventType := model.V1InboundStatus
	rawEvent := []byte(`{"channel_id":"15550001111","message_id":"wamid.test-123","message_status":"delivered","msg_from_type":"ORG","app_name":"WHATSAPP"}`)

	mockService.On("ProcessStatusEvent", mock.Anything, mock.AnythingOfType("model.StatusEventPayload"), mock.AnythingOfType("*model.LastMetadata")).
		Run(func(args mock.Arguments) {
			actual := args.Get(1).(model.StatusEventPayload)
			assert.Equal(t, testMsgID, actual.MessageID)
			assert.Equal(t, model.UserMessageStatusDelivered, actual.MessageStatus)
		}).
		Return(nil)

	err := realHandler.HandleEvent(ctx, eventType, metadata, rawEvent)

	assert.NoError(t, err)
	mockService.AssertExpectations(t)
}

// TestMockServiceError demonstrates error handling
func TestMockServiceError(t *testing.T) {
	mockService := new(MockConversationService)

	realHandler := handler.NewInboundHandler(mockService)

	ctx, metadata := setupTest(t)
	eventType := model.V1InboundMessage
	rawEvent := []byte(`{"channel_id":"15550001111","sender_id":"628111","msg_type":"text"}`)

	expectedErr := errors.New("service error")

	mockService.On("ProcessInboundMessage", mock.Anything, mock.AnythingOfType("model.InboundMessagePayload"), mock.AnythingOfType("*model.LastMetadata")).
		Return(expectedErr)

	err := realHandler.HandleEvent(ctx, eventType, metadata, rawEvent)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	mockService.AssertExpectations(t)
}
