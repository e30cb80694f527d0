package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	storagemock "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
)

const testEventOrgID = "org-event-test"

// notifierMock mocks the realtime notifier.
type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) NotifyMessage(ctx context.Context, payload model.RealtimeMessagePayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *notifierMock) NotifyStatus(ctx context.Context, payload model.RealtimeStatusPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// downloaderMock mocks provider media downloads.
type downloaderMock struct {
	mock.Mock
}

func (m *downloaderMock) DownloadMedia(ctx context.Context, platform *model.Platform, mediaID string) ([]byte, string, string, error) {
	args := m.Called(ctx, platform, mediaID)
	if args.Get(0) == nil {
		return nil, args.String(1), args.String(2), args.Error(3)
	}
	return args.Get(0).([]byte), args.String(1), args.String(2), args.Error(3)
}

// profileCacheMock mocks the profile freshness cache.
type profileCacheMock struct {
	mock.Mock
}

func (m *profileCacheMock) IsFresh(contactID string) bool {
	return m.Called(contactID).Bool(0)
}

func (m *profileCacheMock) MarkFresh(contactID string) {
	m.Called(contactID)
}

type eventServiceMocks struct {
	contactRepo      *storagemock.ContactRepoMock
	platformRepo     *storagemock.PlatformRepoMock
	conversationRepo *storagemock.ConversationRepoMock
	messageRepo      *storagemock.MessageRepoMock
	notifier         *notifierMock
	media            *mediaStoreMock
	downloader       *downloaderMock
	profileCache     *profileCacheMock
}

func newTestEventService(t *testing.T) (*EventService, eventServiceMocks, context.Context) {
	t.Helper()

	mocks := eventServiceMocks{
		contactRepo:      new(storagemock.ContactRepoMock),
		platformRepo:     new(storagemock.PlatformRepoMock),
		conversationRepo: new(storagemock.ConversationRepoMock),
		messageRepo:      new(storagemock.MessageRepoMock),
		notifier:         new(notifierMock),
		media:            new(mediaStoreMock),
		downloader:       new(downloaderMock),
		profileCache:     new(profileCacheMock),
	}
	service := NewEventService(
		mocks.contactRepo,
		mocks.platformRepo,
		mocks.conversationRepo,
		mocks.messageRepo,
		mocks.notifier,
		mocks.media,
		mocks.downloader,
		mocks.profileCache,
	)
	ctx := tenant.WithOrganizationID(context.Background(), testEventOrgID)
	ctx = logger.WithLogger(ctx, zaptest.NewLogger(t))
	return service, mocks, ctx
}

func inboundPayload() model.InboundMessagePayload {
	return model.InboundMessagePayload{
		ChannelID:         "15550001111",
		SenderID:          "628123456789",
		SenderName:        "Alice",
		ProviderMessageID: "wamid.msg-1",
		MessageBody:       "Hello there",
		MsgType:           "text",
		MsgFromType:       model.MsgFromCustomer,
		AppName:           model.PlatformWhatsApp,
		OrganizationID:    testEventOrgID,
		Timestamp:         1714550000,
	}
}

func eventPlatform() *model.Platform {
	return &model.Platform{
		ID:             "platform-wa-1",
		Name:           model.PlatformWhatsApp,
		LoginID:        "15550001111",
		OrganizationID: testEventOrgID,
		Active:         true,
	}
}

func TestProcessInboundMessage_Success(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	contact := &model.Contact{ID: "contact-1", Name: "Alice", Address: payload.SenderID, OrganizationID: testEventOrgID}

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.MatchedBy(func(c model.Contact) bool {
		return c.Address == payload.SenderID && c.PlatformName == model.PlatformWhatsApp && c.OrganizationID == testEventOrgID
	})).Return(contact, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(true).Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1", Status: model.ConversationStatusNew}, true, nil).Once()
	mocks.messageRepo.On("CreateIncoming", mock.Anything, mock.MatchedBy(func(msg model.IncomingMessage) bool {
		return msg.ProviderMessageID == "wamid.msg-1" &&
			msg.ConversationID == "conv-1" &&
			msg.Status == model.IncomingStatusUnread &&
			msg.ReceivedAt.Equal(time.Unix(1714550000, 0).UTC())
	})).Return(&model.IncomingMessage{ID: 101, ReceivedAt: time.Unix(1714550000, 0).UTC(), MessageBody: payload.MessageBody, Status: model.IncomingStatusUnread}, nil).Once()
	mocks.notifier.On("NotifyMessage", mock.Anything, mock.MatchedBy(func(n model.RealtimeMessagePayload) bool {
		return n.ID == 101 && n.ConversationID == "conv-1" && n.IsConversationNew && n.CustomerName == "Alice"
	})).Return(nil).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.NoError(t, err)

	mocks.platformRepo.AssertExpectations(t)
	mocks.contactRepo.AssertExpectations(t)
	mocks.conversationRepo.AssertExpectations(t)
	mocks.messageRepo.AssertExpectations(t)
	mocks.notifier.AssertExpectations(t)
	mocks.contactRepo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_StaleProfileRefreshed(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	contact := &model.Contact{ID: "contact-1", Name: "Old Name", Avatar: "avatar-url", Address: payload.SenderID}

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).Return(contact, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(false).Once()
	mocks.contactRepo.On("UpdateProfile", mock.Anything, "contact-1", "Alice", "avatar-url").Return(nil).Once()
	mocks.profileCache.On("MarkFresh", "contact-1").Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1"}, false, nil).Once()
	mocks.messageRepo.On("CreateIncoming", mock.Anything, mock.Anything).
		Return(&model.IncomingMessage{ID: 102}, nil).Once()
	mocks.notifier.On("NotifyMessage", mock.Anything, mock.Anything).Return(nil).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.NoError(t, err)
	mocks.contactRepo.AssertExpectations(t)
	mocks.profileCache.AssertExpectations(t)
}

func TestProcessInboundMessage_DuplicateIsSuccess(t *testing.T) {
	// Redelivered queue events hit the provider-messageid unique index; the
	// consumer acks rather than retrying forever.
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).
		Return(&model.Contact{ID: "contact-1"}, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(true).Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1"}, false, nil).Once()
	mocks.messageRepo.On("CreateIncoming", mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrDuplicate).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.NoError(t, err)
	mocks.notifier.AssertNotCalled(t, "NotifyMessage", mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_UnknownChannelIsFatal(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).
		Return(nil, apperrors.ErrNotFound).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	mocks.contactRepo.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_DatabaseErrorIsRetryable(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrDatabase).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestProcessInboundMessage_OrganizationMismatchIsFatal(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	payload.OrganizationID = "some-other-org"

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	mocks.platformRepo.AssertNotCalled(t, "FindByLoginID", mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_ValidationFailureIsFatal(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	payload.SenderID = ""

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	mocks.platformRepo.AssertNotCalled(t, "FindByLoginID", mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_MediaDownloadedAndStored(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	payload.MsgType = "image"
	payload.MediaID = "media-handle-77"
	payload.MessageBody = "receipt"
	imageBytes := []byte{0xFF, 0xD8, 0xFF}

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).
		Return(&model.Contact{ID: "contact-1"}, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(true).Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1"}, false, nil).Once()
	mocks.downloader.On("DownloadMedia", mock.Anything, mock.Anything, "media-handle-77").
		Return(imageBytes, "image/jpeg", "photo.jpg", nil).Once()
	mocks.media.On("StoreInbound", mock.Anything, testEventOrgID, "contact-1", "photo.jpg", imageBytes, "image/jpeg").
		Return("https://media.example.com/photo.jpg", nil).Once()
	mocks.messageRepo.On("CreateIncoming", mock.Anything, mock.MatchedBy(func(msg model.IncomingMessage) bool {
		return msg.MediaURL == "https://media.example.com/photo.jpg" && msg.MessageType == "image"
	})).Return(&model.IncomingMessage{ID: 103, MediaURL: "https://media.example.com/photo.jpg"}, nil).Once()
	mocks.notifier.On("NotifyMessage", mock.Anything, mock.Anything).Return(nil).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.NoError(t, err)
	mocks.downloader.AssertExpectations(t)
	mocks.media.AssertExpectations(t)
}

func TestProcessInboundMessage_ExpiredMediaPersistsWithoutIt(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	payload.MsgType = "image"
	payload.MediaID = "media-expired"

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).
		Return(&model.Contact{ID: "contact-1"}, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(true).Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1"}, false, nil).Once()
	mocks.downloader.On("DownloadMedia", mock.Anything, mock.Anything, "media-expired").
		Return(nil, "", "", apperrors.ErrNotFound).Once()
	mocks.messageRepo.On("CreateIncoming", mock.Anything, mock.MatchedBy(func(msg model.IncomingMessage) bool {
		return msg.MediaURL == ""
	})).Return(&model.IncomingMessage{ID: 104}, nil).Once()
	mocks.notifier.On("NotifyMessage", mock.Anything, mock.Anything).Return(nil).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.NoError(t, err)
	mocks.media.AssertNotCalled(t, "StoreInbound", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_MediaDownloadFailureIsRetryable(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	payload.MsgType = "image"
	payload.MediaID = "media-handle-77"

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).
		Return(&model.Contact{ID: "contact-1"}, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(true).Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1"}, false, nil).Once()
	mocks.downloader.On("DownloadMedia", mock.Anything, mock.Anything, "media-handle-77").
		Return(nil, "", "", errors.New("provider 500")).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	mocks.messageRepo.AssertNotCalled(t, "CreateIncoming", mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_AttachmentPathUsedDirectly(t *testing.T) {
	// Gmail attachments were stored by the poller before publish; no download
	// round-trip happens in the consumer.
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()
	payload.AppName = model.PlatformGmail
	payload.MsgType = "email"
	payload.Subject = "Invoice"
	payload.Attachments = []model.AttachmentPayload{
		{Filename: "invoice.pdf", MimeType: "application/pdf", Path: "https://media.example.com/invoice.pdf"},
	}

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).
		Return(&model.Contact{ID: "contact-1"}, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(true).Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1"}, false, nil).Once()
	mocks.messageRepo.On("CreateIncoming", mock.Anything, mock.MatchedBy(func(msg model.IncomingMessage) bool {
		return msg.MediaURL == "https://media.example.com/invoice.pdf" && msg.Subject == "Invoice"
	})).Return(&model.IncomingMessage{ID: 105}, nil).Once()
	mocks.notifier.On("NotifyMessage", mock.Anything, mock.Anything).Return(nil).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.NoError(t, err)
	mocks.downloader.AssertNotCalled(t, "DownloadMedia", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessInboundMessage_NotifierFailureDoesNotFail(t *testing.T) {
	service, mocks, ctx := newTestEventService(t)
	payload := inboundPayload()

	mocks.platformRepo.On("FindByLoginID", mock.Anything, payload.ChannelID).Return(eventPlatform(), nil).Once()
	mocks.contactRepo.On("GetOrCreate", mock.Anything, mock.Anything).
		Return(&model.Contact{ID: "contact-1"}, nil).Once()
	mocks.profileCache.On("IsFresh", "contact-1").Return(true).Once()
	mocks.conversationRepo.On("GetOrOpen", mock.Anything, "contact-1", "platform-wa-1", model.OpenByCustomer).
		Return(&model.Conversation{ID: "conv-1"}, false, nil).Once()
	mocks.messageRepo.On("CreateIncoming", mock.Anything, mock.Anything).
		Return(&model.IncomingMessage{ID: 106}, nil).Once()
	mocks.notifier.On("NotifyMessage", mock.Anything, mock.Anything).
		Return(errors.New("nats publish timeout")).Once()

	err := service.ProcessInboundMessage(ctx, payload, nil)
	assert.NoError(t, err)
}
