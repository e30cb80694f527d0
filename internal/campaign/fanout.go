package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// recipient send outcomes. Skipped recipients (no datasource row) count
// toward neither success nor failure when folding the schedule status.
type sendOutcome int

const (
	outcomeSuccess sendOutcome = iota
	outcomeFailure
	outcomeSkipped
)

// Summary tallies one schedule run's per-recipient outcomes.
type Summary struct {
	Sent    int
	Failed  int
	Skipped int
}

// Sender dispatches one campaign message through a provider.
type Sender interface {
	SendText(ctx context.Context, platform *model.Platform, recipient, body string) (string, error)
}

// TemplateSender is the optional vendor template API surface; WhatsApp
// template sends go through it, everything else falls back to rendered text.
type TemplateSender interface {
	SendTemplate(ctx context.Context, platform *model.Platform, recipient, templateName, language string, bodyParams []string) (string, error)
}

// recipientTask is one unit of work submitted to the fan-out pool.
type recipientTask struct {
	ctx      context.Context
	schedule *model.ScheduledMessage
	platform *model.Platform
	contact  model.Contact
	result   *sendOutcome
	wg       *sync.WaitGroup
}

// Fanout sends one campaign cycle to every resolved recipient through a
// bounded worker pool. Every attempt, success or failure, writes one
// UserMessage and one PlatformLog row; nothing is rolled back on send
// failure.
type Fanout struct {
	pool             *ants.PoolWithFunc
	contactRepo      storage.ContactRepo
	platformRepo     storage.PlatformRepo
	conversationRepo storage.ConversationRepo
	messageRepo      storage.MessageRepo
	scheduleRepo     storage.ScheduleRepo
	sender           Sender
	baseLogger       *zap.Logger
}

// NewFanout creates the campaign fan-out pool.
func NewFanout(
	cfg config.CampaignWorkerPoolConfig,
	contactRepo storage.ContactRepo,
	platformRepo storage.PlatformRepo,
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	scheduleRepo storage.ScheduleRepo,
	sender Sender,
	baseLogger *zap.Logger,
) (*Fanout, error) {
	f := &Fanout{
		contactRepo:      contactRepo,
		platformRepo:     platformRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		scheduleRepo:     scheduleRepo,
		sender:           sender,
		baseLogger:       baseLogger.Named("campaign_fanout"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(recipientTask)
		if !ok {
			f.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		defer task.wg.Done()
		*task.result = f.sendToRecipient(task.ctx, task.schedule, task.platform, task.contact)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			f.baseLogger.Error("Panic recovered in campaign fan-out", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign fan-out pool: %w", err)
	}
	f.pool = pool
	f.baseLogger.Info("Campaign fan-out pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
	)
	return f, nil
}

// Run fans one claimed schedule out to all of its recipients and returns the
// folded outcome tally. An error here means the fan-out could not even start
// (platform or recipients unresolvable); per-recipient failures land in the
// Summary instead.
func (f *Fanout) Run(ctx context.Context, schedule *model.ScheduledMessage) (Summary, error) {
	log := logger.FromContext(ctx).With(zap.Int64("schedule_id", schedule.ID))
	start := utils.Now()

	platform, err := f.platformRepo.FindByID(ctx, schedule.PlatformID)
	if err != nil {
		return Summary{}, fmt.Errorf("resolving campaign platform %s: %w", schedule.PlatformID, err)
	}

	recipients, err := f.resolveRecipients(ctx, schedule)
	if err != nil {
		return Summary{}, err
	}
	if len(recipients) == 0 {
		log.Warn("Campaign schedule resolved no recipients")
		return Summary{}, nil
	}

	results := make([]sendOutcome, len(recipients))
	var wg sync.WaitGroup
	for i := range recipients {
		wg.Add(1)
		task := recipientTask{
			ctx:      ctx,
			schedule: schedule,
			platform: platform,
			contact:  recipients[i],
			result:   &results[i],
			wg:       &wg,
		}
		if err := f.pool.Invoke(task); err != nil {
			// Pool refused the task; count the recipient as failed rather
			// than stalling the whole cycle.
			wg.Done()
			results[i] = outcomeFailure
			log.Error("Failed to submit campaign recipient to pool",
				zap.String("contact_id", recipients[i].ID),
				zap.Error(err),
			)
		}
	}
	wg.Wait()

	var summary Summary
	for _, outcome := range results {
		switch outcome {
		case outcomeSuccess:
			summary.Sent++
		case outcomeFailure:
			summary.Failed++
		case outcomeSkipped:
			summary.Skipped++
		}
	}

	observer.ObserveCampaignFanoutDuration(schedule.OrganizationID, time.Since(start))
	log.Info("Campaign fan-out finished",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

// resolveRecipients expands the schedule's recipient selector into contacts.
func (f *Fanout) resolveRecipients(ctx context.Context, schedule *model.ScheduledMessage) ([]model.Contact, error) {
	switch schedule.RecipientType {
	case model.RecipientIndividual:
		contact, err := f.contactRepo.FindByID(ctx, schedule.ContactID)
		if err != nil {
			return nil, fmt.Errorf("resolving campaign contact %s: %w", schedule.ContactID, err)
		}
		return []model.Contact{*contact}, nil
	case model.RecipientGroup:
		members, err := f.contactRepo.ListGroupMembers(ctx, schedule.GroupID)
		if err != nil {
			return nil, fmt.Errorf("resolving campaign group %s: %w", schedule.GroupID, err)
		}
		return members, nil
	default:
		return nil, fmt.Errorf("%w: unknown recipient type %s", apperrors.ErrBadRequest, schedule.RecipientType)
	}
}

// sendToRecipient performs one delivery attempt end to end: body resolution,
// vendor send, and the UserMessage plus PlatformLog bookkeeping.
func (f *Fanout) sendToRecipient(ctx context.Context, schedule *model.ScheduledMessage, platform *model.Platform, contact model.Contact) sendOutcome {
	log := logger.FromContextOr(ctx, f.baseLogger).With(
		zap.Int64("schedule_id", schedule.ID),
		zap.String("contact_id", contact.ID),
	)

	body, values, params, outcome := f.resolveBody(ctx, schedule, contact, log)
	if outcome != outcomeSuccess {
		if outcome == outcomeFailure {
			observer.IncCampaignRecipientFailed(schedule.OrganizationID)
		}
		return outcome
	}

	var (
		providerMessageID string
		sendErr           error
		sent              bool
	)
	if schedule.MessageType == "template" && schedule.TemplateName != "" && platform.Name == model.PlatformWhatsApp {
		if templateSender, ok := f.sender.(TemplateSender); ok {
			bodyParams := TemplateParams(schedule.TemplateText, values)
			providerMessageID, sendErr = templateSender.SendTemplate(ctx, platform, contact.Address, schedule.TemplateName, "", bodyParams)
			sent = true
		}
	}
	if !sent {
		providerMessageID, sendErr = f.sender.SendText(ctx, platform, contact.Address, body)
	}

	// The campaign conversation is created closed so it never competes with
	// the live open conversation for the same contact.
	conversationID := ""
	conversation, convErr := f.conversationRepo.CreateClosed(ctx, contact.ID, platform.ID, "Campaign")
	if convErr != nil {
		log.Warn("Failed to create campaign conversation", zap.Error(convErr))
	} else {
		conversationID = conversation.ID
	}

	status := model.UserMessageStatusSentToServer
	details := ""
	if sendErr != nil {
		status = model.UserMessageStatusFailed
		details = sendErr.Error()
	}
	userMessage := model.UserMessage{
		ProviderMessageID:  providerMessageID,
		ConversationID:     conversationID,
		ContactID:          contact.ID,
		PlatformID:         platform.ID,
		OrganizationID:     schedule.OrganizationID,
		ScheduledMessageID: &schedule.ID,
		MessageType:        schedule.MessageType,
		MessageBody:        body,
		TemplateName:       schedule.TemplateName,
		TemplateParams:     params,
		Status:             status,
		StatusDetails:      details,
		SentAt:             utils.Now(),
	}
	if _, err := f.messageRepo.CreateUser(ctx, userMessage); err != nil {
		log.Error("Failed to record campaign user message", zap.Error(err))
	}

	platformLog := model.PlatformLog{
		OrganizationID:     schedule.OrganizationID,
		PlatformID:         platform.ID,
		ScheduledMessageID: &schedule.ID,
		ContactID:          contact.ID,
		Outcome:            model.DeliveryOutcomeSuccess,
	}
	if sendErr != nil {
		platformLog.Outcome = model.DeliveryOutcomeFailure
		platformLog.Details = sendErr.Error()
	}
	if err := f.platformRepo.CreateLog(ctx, platformLog); err != nil {
		log.Error("Failed to record campaign platform log", zap.Error(err))
	}

	if sendErr != nil {
		observer.IncCampaignRecipientFailed(schedule.OrganizationID)
		log.Warn("Campaign send failed",
			zap.String("recipient", contact.Address),
			zap.Error(sendErr),
		)
		return outcomeFailure
	}
	observer.IncCampaignRecipientSent(schedule.OrganizationID)
	log.Debug("Campaign send succeeded",
		zap.String("recipient", contact.Address),
		zap.String("provider_message_id", providerMessageID),
	)
	return outcomeSuccess
}

// resolveBody picks the message body for one recipient, splicing datasource
// values into the template when the schedule carries one. A recipient whose
// phone has no datasource row is skipped entirely.
func (f *Fanout) resolveBody(ctx context.Context, schedule *model.ScheduledMessage, contact model.Contact, log *zap.Logger) (string, map[string]interface{}, datatypes.JSON, sendOutcome) {
	if schedule.DatasourceID == nil || schedule.TemplateText == "" {
		return schedule.MessageBody, nil, nil, outcomeSuccess
	}

	row, err := f.scheduleRepo.FindDatasourceRowByPhone(ctx, *schedule.DatasourceID, contact.Address)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			observer.IncCampaignRecipientSkipped(schedule.OrganizationID)
			log.Info("Skipping campaign recipient without datasource row",
				zap.String("recipient", contact.Address),
				zap.Int64("datasource_id", *schedule.DatasourceID),
			)
			return "", nil, nil, outcomeSkipped
		}
		// Treat lookup failures like send failures so they show up in the
		// completion ratio instead of vanishing.
		log.Error("Failed to look up datasource row", zap.Error(err))
		return "", nil, nil, outcomeFailure
	}

	values := map[string]interface{}(row.Values)
	body := RenderTemplate(schedule.TemplateText, values)
	return body, values, datatypes.JSON(utils.MustMarshalJSON(values)), outcomeSuccess
}

// Stop gracefully shuts down the fan-out pool.
func (f *Fanout) Stop() {
	if f.pool != nil {
		f.baseLogger.Info("Releasing campaign fan-out pool")
		f.pool.Release()
	}
}
