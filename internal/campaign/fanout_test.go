package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	storagemock "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
)

// senderMock implements Sender only; template sends fall back to text.
type senderMock struct {
	mock.Mock
}

func (m *senderMock) SendText(ctx context.Context, platform *model.Platform, recipient, body string) (string, error) {
	args := m.Called(ctx, platform, recipient, body)
	return args.String(0), args.Error(1)
}

// templateSenderMock implements both Sender and TemplateSender.
type templateSenderMock struct {
	senderMock
}

func (m *templateSenderMock) SendTemplate(ctx context.Context, platform *model.Platform, recipient, templateName, language string, bodyParams []string) (string, error) {
	args := m.Called(ctx, platform, recipient, templateName, language, bodyParams)
	return args.String(0), args.Error(1)
}

type fanoutMocks struct {
	contactRepo      *storagemock.ContactRepoMock
	platformRepo     *storagemock.PlatformRepoMock
	conversationRepo *storagemock.ConversationRepoMock
	messageRepo      *storagemock.MessageRepoMock
	scheduleRepo     *storagemock.ScheduleRepoMock
}

func newTestFanout(t *testing.T, sender Sender) (*Fanout, fanoutMocks) {
	t.Helper()

	mocks := fanoutMocks{
		contactRepo:      new(storagemock.ContactRepoMock),
		platformRepo:     new(storagemock.PlatformRepoMock),
		conversationRepo: new(storagemock.ConversationRepoMock),
		messageRepo:      new(storagemock.MessageRepoMock),
		scheduleRepo:     new(storagemock.ScheduleRepoMock),
	}

	cfg := config.CampaignWorkerPoolConfig{
		PoolSize:   4,
		QueueSize:  16,
		ExpiryTime: time.Minute,
	}
	fanout, err := NewFanout(
		cfg,
		mocks.contactRepo,
		mocks.platformRepo,
		mocks.conversationRepo,
		mocks.messageRepo,
		mocks.scheduleRepo,
		sender,
		zaptest.NewLogger(t),
	)
	require.NoError(t, err)
	t.Cleanup(fanout.Stop)
	return fanout, mocks
}

func fanoutContext(t *testing.T) context.Context {
	return logger.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestFanout_Run_IndividualTextSuccess(t *testing.T) {
	sender := new(senderMock)
	fanout, mocks := newTestFanout(t, sender)
	ctx := fanoutContext(t)

	scheduleID := int64(9)
	schedule := &model.ScheduledMessage{
		ID:             scheduleID,
		OrganizationID: "org-campaign-test",
		PlatformID:     "platform-wa-1",
		RecipientType:  model.RecipientIndividual,
		ContactID:      "contact-1",
		Frequency:      model.FrequencyOnce,
		MessageType:    "text",
		MessageBody:    "Store reopens Monday.",
	}
	platform := &model.Platform{ID: "platform-wa-1", Name: model.PlatformWhatsApp, OrganizationID: schedule.OrganizationID}
	contact := &model.Contact{ID: "contact-1", Address: "628123456789", OrganizationID: schedule.OrganizationID}

	mocks.platformRepo.On("FindByID", mock.Anything, "platform-wa-1").Return(platform, nil).Once()
	mocks.contactRepo.On("FindByID", mock.Anything, "contact-1").Return(contact, nil).Once()
	sender.On("SendText", mock.Anything, platform, "628123456789", "Store reopens Monday.").Return("wamid-001", nil).Once()
	mocks.conversationRepo.On("CreateClosed", mock.Anything, "contact-1", "platform-wa-1", "Campaign").
		Return(&model.Conversation{ID: "conv-campaign-1", Status: model.ConversationStatusClosed}, nil).Once()
	mocks.messageRepo.On("CreateUser", mock.Anything, mock.MatchedBy(func(msg model.UserMessage) bool {
		return msg.ProviderMessageID == "wamid-001" &&
			msg.ConversationID == "conv-campaign-1" &&
			msg.Status == model.UserMessageStatusSentToServer &&
			msg.ScheduledMessageID != nil && *msg.ScheduledMessageID == scheduleID &&
			msg.MessageBody == "Store reopens Monday."
	})).Return(&model.UserMessage{ID: 1}, nil).Once()
	mocks.platformRepo.On("CreateLog", mock.Anything, mock.MatchedBy(func(entry model.PlatformLog) bool {
		return entry.Outcome == model.DeliveryOutcomeSuccess && entry.ContactID == "contact-1"
	})).Return(nil).Once()

	summary, err := fanout.Run(ctx, schedule)
	assert.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1}, summary)

	sender.AssertExpectations(t)
	mocks.platformRepo.AssertExpectations(t)
	mocks.contactRepo.AssertExpectations(t)
	mocks.conversationRepo.AssertExpectations(t)
	mocks.messageRepo.AssertExpectations(t)
}

func TestFanout_Run_GroupDatasourceSkipsRecipientWithoutRow(t *testing.T) {
	sender := new(senderMock)
	fanout, mocks := newTestFanout(t, sender)
	ctx := fanoutContext(t)

	datasourceID := int64(5)
	schedule := &model.ScheduledMessage{
		ID:             10,
		OrganizationID: "org-campaign-test",
		PlatformID:     "platform-wa-1",
		RecipientType:  model.RecipientGroup,
		GroupID:        "group-1",
		Frequency:      model.FrequencyWeekly,
		MessageType:    "text",
		TemplateText:   "Hi {{name}}, your code is {{voucher}}.",
		DatasourceID:   &datasourceID,
	}
	platform := &model.Platform{ID: "platform-wa-1", Name: model.PlatformWhatsApp}
	members := []model.Contact{
		{ID: "contact-a", Address: "628111"},
		{ID: "contact-b", Address: "628222"},
	}

	mocks.platformRepo.On("FindByID", mock.Anything, "platform-wa-1").Return(platform, nil).Once()
	mocks.contactRepo.On("ListGroupMembers", mock.Anything, "group-1").Return(members, nil).Once()

	mocks.scheduleRepo.On("FindDatasourceRowByPhone", mock.Anything, datasourceID, "628111").
		Return(&model.DatasourceRow{Phone: "628111", Values: datatypes.JSONMap{"name": "Alice", "voucher": "DISC10"}}, nil).Once()
	// The second member has no row in the sheet and is skipped outright: no
	// send, no user message, no platform log.
	mocks.scheduleRepo.On("FindDatasourceRowByPhone", mock.Anything, datasourceID, "628222").
		Return(nil, apperrors.ErrNotFound).Once()

	sender.On("SendText", mock.Anything, platform, "628111", "Hi Alice, your code is DISC10.").Return("wamid-a", nil).Once()
	mocks.conversationRepo.On("CreateClosed", mock.Anything, "contact-a", "platform-wa-1", "Campaign").
		Return(&model.Conversation{ID: "conv-a"}, nil).Once()
	mocks.messageRepo.On("CreateUser", mock.Anything, mock.MatchedBy(func(msg model.UserMessage) bool {
		return msg.ContactID == "contact-a" && msg.MessageBody == "Hi Alice, your code is DISC10."
	})).Return(&model.UserMessage{ID: 2}, nil).Once()
	mocks.platformRepo.On("CreateLog", mock.Anything, mock.Anything).Return(nil).Once()

	summary, err := fanout.Run(ctx, schedule)
	assert.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1, Skipped: 1}, summary)

	sender.AssertExpectations(t)
	mocks.scheduleRepo.AssertExpectations(t)
	mocks.messageRepo.AssertNumberOfCalls(t, "CreateUser", 1)
}

func TestFanout_Run_SendFailureStillRecordsBookkeeping(t *testing.T) {
	sender := new(senderMock)
	fanout, mocks := newTestFanout(t, sender)
	ctx := fanoutContext(t)

	schedule := &model.ScheduledMessage{
		ID:             11,
		OrganizationID: "org-campaign-test",
		PlatformID:     "platform-wa-1",
		RecipientType:  model.RecipientIndividual,
		ContactID:      "contact-1",
		MessageType:    "text",
		MessageBody:    "hello",
	}
	platform := &model.Platform{ID: "platform-wa-1", Name: model.PlatformWhatsApp}
	contact := &model.Contact{ID: "contact-1", Address: "628123456789"}
	sendErr := errors.New("recipient unreachable")

	mocks.platformRepo.On("FindByID", mock.Anything, "platform-wa-1").Return(platform, nil).Once()
	mocks.contactRepo.On("FindByID", mock.Anything, "contact-1").Return(contact, nil).Once()
	sender.On("SendText", mock.Anything, platform, "628123456789", "hello").Return("", sendErr).Once()
	mocks.conversationRepo.On("CreateClosed", mock.Anything, "contact-1", "platform-wa-1", "Campaign").
		Return(&model.Conversation{ID: "conv-f"}, nil).Once()
	mocks.messageRepo.On("CreateUser", mock.Anything, mock.MatchedBy(func(msg model.UserMessage) bool {
		return msg.Status == model.UserMessageStatusFailed && msg.StatusDetails == "recipient unreachable"
	})).Return(&model.UserMessage{ID: 3}, nil).Once()
	mocks.platformRepo.On("CreateLog", mock.Anything, mock.MatchedBy(func(entry model.PlatformLog) bool {
		return entry.Outcome == model.DeliveryOutcomeFailure && entry.Details == "recipient unreachable"
	})).Return(nil).Once()

	summary, err := fanout.Run(ctx, schedule)
	assert.NoError(t, err)
	assert.Equal(t, Summary{Failed: 1}, summary)

	sender.AssertExpectations(t)
	mocks.messageRepo.AssertExpectations(t)
	mocks.platformRepo.AssertExpectations(t)
}

func TestFanout_Run_WhatsAppTemplateUsesTemplateAPI(t *testing.T) {
	sender := new(templateSenderMock)
	fanout, mocks := newTestFanout(t, sender)
	ctx := fanoutContext(t)

	datasourceID := int64(5)
	schedule := &model.ScheduledMessage{
		ID:             12,
		OrganizationID: "org-campaign-test",
		PlatformID:     "platform-wa-1",
		RecipientType:  model.RecipientIndividual,
		ContactID:      "contact-1",
		MessageType:    "template",
		TemplateName:   "promo_voucher",
		TemplateText:   "Hi {{name}}, use {{voucher}}.",
		DatasourceID:   &datasourceID,
	}
	platform := &model.Platform{ID: "platform-wa-1", Name: model.PlatformWhatsApp}
	contact := &model.Contact{ID: "contact-1", Address: "628123456789"}

	mocks.platformRepo.On("FindByID", mock.Anything, "platform-wa-1").Return(platform, nil).Once()
	mocks.contactRepo.On("FindByID", mock.Anything, "contact-1").Return(contact, nil).Once()
	mocks.scheduleRepo.On("FindDatasourceRowByPhone", mock.Anything, datasourceID, "628123456789").
		Return(&model.DatasourceRow{Phone: "628123456789", Values: datatypes.JSONMap{"name": "Alice", "voucher": "DISC10"}}, nil).Once()
	sender.On("SendTemplate", mock.Anything, platform, "628123456789", "promo_voucher", "", []string{"Alice", "DISC10"}).
		Return("wamid-tpl", nil).Once()
	mocks.conversationRepo.On("CreateClosed", mock.Anything, "contact-1", "platform-wa-1", "Campaign").
		Return(&model.Conversation{ID: "conv-t"}, nil).Once()
	mocks.messageRepo.On("CreateUser", mock.Anything, mock.MatchedBy(func(msg model.UserMessage) bool {
		return msg.ProviderMessageID == "wamid-tpl" && msg.TemplateName == "promo_voucher"
	})).Return(&model.UserMessage{ID: 4}, nil).Once()
	mocks.platformRepo.On("CreateLog", mock.Anything, mock.Anything).Return(nil).Once()

	summary, err := fanout.Run(ctx, schedule)
	assert.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1}, summary)

	sender.AssertExpectations(t)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFanout_Run_PlatformUnresolvable(t *testing.T) {
	sender := new(senderMock)
	fanout, mocks := newTestFanout(t, sender)
	ctx := fanoutContext(t)

	schedule := &model.ScheduledMessage{
		ID:            13,
		PlatformID:    "platform-404",
		RecipientType: model.RecipientIndividual,
		ContactID:     "contact-1",
	}
	mocks.platformRepo.On("FindByID", mock.Anything, "platform-404").Return(nil, apperrors.ErrNotFound).Once()

	summary, err := fanout.Run(ctx, schedule)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, Summary{}, summary)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFanout_Run_UnknownRecipientType(t *testing.T) {
	sender := new(senderMock)
	fanout, mocks := newTestFanout(t, sender)
	ctx := fanoutContext(t)

	schedule := &model.ScheduledMessage{
		ID:            14,
		PlatformID:    "platform-wa-1",
		RecipientType: "broadcast-to-everyone",
	}
	mocks.platformRepo.On("FindByID", mock.Anything, "platform-wa-1").
		Return(&model.Platform{ID: "platform-wa-1"}, nil).Once()

	summary, err := fanout.Run(ctx, schedule)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.Equal(t, Summary{}, summary)
}

func TestFanout_Run_NoRecipients(t *testing.T) {
	sender := new(senderMock)
	fanout, mocks := newTestFanout(t, sender)
	ctx := fanoutContext(t)

	schedule := &model.ScheduledMessage{
		ID:            15,
		PlatformID:    "platform-wa-1",
		RecipientType: model.RecipientGroup,
		GroupID:       "group-empty",
	}
	mocks.platformRepo.On("FindByID", mock.Anything, "platform-wa-1").
		Return(&model.Platform{ID: "platform-wa-1"}, nil).Once()
	mocks.contactRepo.On("ListGroupMembers", mock.Anything, "group-empty").
		Return([]model.Contact{}, nil).Once()

	summary, err := fanout.Run(ctx, schedule)
	assert.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
