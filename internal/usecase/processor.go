package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/ingestion"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/ingestion/handler"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/jetstream"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
)

// Processor wires the inbound consumer, router and handlers together.
type Processor struct {
	service         *EventService
	jsClient        jetstream.ClientInterface
	inboundConsumer *ingestion.InboundConsumer
	eventRouter     ingestion.RouterInterface
	inboundHandler  handler.InboundHandlerInterface
	statusHandler   handler.StatusHandlerInterface
}

// NewProcessor creates a new processor with all components wired up.
// Accepts the main config object to access NATS settings.
func NewProcessor(service *EventService, jsClient jetstream.ClientInterface, cfg *config.Config, organizationID string) *Processor {
	router := ingestion.NewRouter()

	inboundHandler := handler.NewInboundHandler(service)
	statusHandler := handler.NewStatusHandler(service)

	// Append the organization ID to consumer names for uniqueness across
	// tenant deployments sharing a NATS cluster.
	inboundCfg := cfg.NATS.Inbound
	inboundCfg.Consumer = inboundCfg.Consumer + organizationID
	inboundCfg.QueueGroup = inboundCfg.QueueGroup + organizationID
	inboundConsumer := ingestion.NewInboundConsumer(jsClient, router, inboundCfg, organizationID, cfg.NATS.DLQSubject)

	return &Processor{
		service:         service,
		jsClient:        jsClient,
		inboundConsumer: inboundConsumer,
		eventRouter:     router,
		inboundHandler:  inboundHandler,
		statusHandler:   statusHandler,
	}
}

// GetRouter returns the processor's event router.
func (p *Processor) GetRouter() ingestion.RouterInterface {
	return p.eventRouter
}

// Setup registers handlers and sets up the inbound consumer.
func (p *Processor) Setup() error {
	p.eventRouter.Register(model.V1InboundMessage, p.inboundHandler.HandleEvent)
	p.eventRouter.Register(model.V1InboundStatus, p.statusHandler.HandleEvent)

	// Unknown (app_name, msg_from_type) combinations and unmapped subjects
	// are dropped with a warning, not sent to the DLQ.
	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("version", eventType.GetVersion()),
			zap.String("base_type", string(eventType.GetBaseType())),
		)
		return nil
	})

	if err := p.inboundConsumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup inbound consumer: %w", err)
	}

	logger.Log.Info("Processor setup complete")
	return nil
}

// Start starts the inbound consumer.
func (p *Processor) Start() error {
	logger.Log.Info("Starting event processor...")

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("[panic] Recovered from panic in processor",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := p.inboundConsumer.Start(); err != nil {
		return fmt.Errorf("failed to start inbound consumer: %w", err)
	}

	logger.Log.Info("Inbound consumer started successfully")
	return nil
}

// Stop stops the inbound consumer.
func (p *Processor) Stop() {
	logger.Log.Info("Stopping event processor...")
	p.inboundConsumer.Stop()
	logger.Log.Info("Inbound consumer stopped")
}
