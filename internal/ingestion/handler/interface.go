package handler

import (
	"context"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// EventHandlerInterface defines the common interface for event handlers
type EventHandlerInterface interface {
	// HandleEvent processes an event
	HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error
}

// InboundHandlerInterface defines the interface for inbound message handlers
type InboundHandlerInterface interface {
	EventHandlerInterface
}

// StatusHandlerInterface defines the interface for status event handlers
type StatusHandlerInterface interface {
	EventHandlerInterface
}

// Ensure the handlers implement the interfaces
var _ InboundHandlerInterface = (*InboundHandler)(nil)
var _ StatusHandlerInterface = (*StatusHandler)(nil)
