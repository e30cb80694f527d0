package mock

import (
	"context"

	"github.com/stretchr/testify/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// MockConversationService is a mock for the ConversationService interface
type MockConversationService struct {
	mock.Mock
}

// ProcessInboundMessage mocks the ProcessInboundMessage method
func (m *MockConversationService) ProcessInboundMessage(ctx context.Context, payload model.InboundMessagePayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}

// MockStatusService is a mock for the StatusService interface
type MockStatusService struct {
	mock.Mock
}

// ProcessStatusEvent mocks the ProcessStatusEvent method
func (m *MockStatusService) ProcessStatusEvent(ctx context.Context, payload model.StatusEventPayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}
