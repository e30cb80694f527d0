package mock

import (
	"context"

	"github.com/stretchr/testify/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// MockInboundHandler is a mock for the InboundHandlerInterface
type MockInboundHandler struct {
	mock.Mock
}

// HandleEvent mocks the HandleEvent method
func (m *MockInboundHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}

// MockStatusHandler is a mock for the StatusHandlerInterface
type MockStatusHandler struct {
	mock.Mock
}

// HandleEvent mocks the HandleEvent method
func (m *MockStatusHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}
