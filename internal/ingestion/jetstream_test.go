package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	clientmock "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/jetstream/mock"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"go.uber.org/zap/zaptest"
)

// MockHandler is a mock of the EventHandler function
type MockHandler struct {
	mock.Mock
}

// Handle implements the EventHandler function signature
func (m *MockHandler) Handle(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}

// Setup test environment helper
func setupTest(t *testing.T) (*clientmock.ClientMock, *Router) {
	// Initialize logger for tests
	logger.Log = zaptest.NewLogger(t).Named("test")

	// Create mock client
	mockClient := new(clientmock.ClientMock)

	// Create router
	router := NewRouter()

	return mockClient, router
}

// --- Tests for InboundConsumer ---

func TestInboundConsumer_Setup(t *testing.T) {
	mockClient, router := setupTest(t)
	organizationID := "test-org-inbound"
	dlqSubject := "v1.dlq"
	cfg := config.ConsumerNatsConfig{
		Stream:      "inbound-stream",
		Consumer:    "inbound-consumer-", // Base name
		QueueGroup:  "inbound-group-",    // Base name
		SubjectList: []string{"v1.inbound.message", "v1.inbound.status"},
		MaxAge:      1, // 1 day
		MaxDeliver:  5,
	}

	// --- Mimic processor behavior: Modify cfg before passing ---
	cfg.Consumer = cfg.Consumer + organizationID
	cfg.QueueGroup = cfg.QueueGroup + organizationID
	// ---------------------------------------------------------

	inboundConsumer := NewInboundConsumer(mockClient, router, cfg, organizationID, dlqSubject)

	// Expected args for mocks
	expectedStreamCfg := &nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{"v1.inbound.message.*", "v1.inbound.status.*"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	}
	expectedConsumerSubjects := []string{
		"v1.inbound.message." + organizationID,
		"v1.inbound.status." + organizationID,
	}
	expectedConsumerCfg := &nats.ConsumerConfig{
		Durable:        cfg.Consumer,
		DeliverGroup:   cfg.QueueGroup,
		FilterSubjects: expectedConsumerSubjects,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverLastPolicy,
	}

	mockClient.On("SetupStream", mock.Anything, mock.MatchedBy(func(sc *nats.StreamConfig) bool {
		return sc.Name == expectedStreamCfg.Name &&
			sc.Storage == expectedStreamCfg.Storage &&
			sc.Retention == expectedStreamCfg.Retention &&
			sc.MaxAge == expectedStreamCfg.MaxAge &&
			assert.ElementsMatch(t, expectedStreamCfg.Subjects, sc.Subjects)
	})).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, cfg.Stream, mock.MatchedBy(func(cc *nats.ConsumerConfig) bool {
		// Compare relevant fields, DeliverSubject is dynamic
		return cc.Durable == expectedConsumerCfg.Durable &&
			cc.DeliverGroup == expectedConsumerCfg.DeliverGroup &&
			assert.ElementsMatch(t, expectedConsumerCfg.FilterSubjects, cc.FilterSubjects) &&
			cc.AckPolicy == expectedConsumerCfg.AckPolicy &&
			cc.MaxDeliver == expectedConsumerCfg.MaxDeliver &&
			cc.AckWait == expectedConsumerCfg.AckWait &&
			cc.MaxAckPending == expectedConsumerCfg.MaxAckPending &&
			cc.ReplayPolicy == expectedConsumerCfg.ReplayPolicy &&
			cc.DeliverPolicy == expectedConsumerCfg.DeliverPolicy
	})).Return(nil)

	err := inboundConsumer.Setup()

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestInboundConsumer_Setup_StreamError(t *testing.T) {
	mockClient, router := setupTest(t)
	organizationID := "test-org-se"
	dlqSubject := "v1.dlq"
	cfg := config.ConsumerNatsConfig{Stream: "inbound-stream-se", SubjectList: []string{"v1.inbound.message"}, MaxDeliver: 5}
	inboundConsumer := NewInboundConsumer(mockClient, router, cfg, organizationID, dlqSubject)

	expectedErr := errors.New("stream setup failed")
	mockClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(expectedErr)

	err := inboundConsumer.Setup()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), expectedErr.Error())
	assert.Contains(t, err.Error(), "failed to setup inbound stream")
	mockClient.AssertExpectations(t)
	mockClient.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestInboundConsumer_Setup_ConsumerError(t *testing.T) {
	mockClient, router := setupTest(t)
	organizationID := "test-org-ce"
	dlqSubject := "v1.dlq"
	cfg := config.ConsumerNatsConfig{Stream: "inbound-stream-ce", Consumer: "inbound-con-ce", SubjectList: []string{"v1.inbound.message"}, MaxDeliver: 5}
	inboundConsumer := NewInboundConsumer(mockClient, router, cfg, organizationID, dlqSubject)

	expectedErr := errors.New("consumer setup failed")
	mockClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, cfg.Stream, mock.AnythingOfType("*nats.ConsumerConfig")).Return(expectedErr)

	err := inboundConsumer.Setup()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), expectedErr.Error())
	assert.Contains(t, err.Error(), "failed to setup inbound consumer")
	mockClient.AssertExpectations(t)
}

func TestInboundConsumer_Start(t *testing.T) {
	mockClient, router := setupTest(t)
	organizationID := "test-org-start"
	dlqSubject := "v1.dlq"
	cfg := config.ConsumerNatsConfig{
		// Base names in the initial config
		Consumer:   "inbound-con-start-",
		QueueGroup: "inbound-grp-start-",
		MaxDeliver: 5,
	}

	// --- Mimic processor behavior: Modify cfg BEFORE passing ---
	modifiedCfg := cfg
	modifiedCfg.Consumer = cfg.Consumer + organizationID
	modifiedCfg.QueueGroup = cfg.QueueGroup + organizationID
	// ---------------------------------------------------------

	inboundConsumer := NewInboundConsumer(mockClient, router, modifiedCfg, organizationID, dlqSubject)

	mockSubscription := clientmock.MockSubscription()

	// The filter subject is set during Setup; Start uses whatever is stored.
	mockClient.On("SubscribePush", "", modifiedCfg.Consumer, modifiedCfg.QueueGroup, cfg.Stream, mock.AnythingOfType("nats.MsgHandler")).Return(mockSubscription, nil)

	err := inboundConsumer.Start()

	assert.NoError(t, err)
	assert.Equal(t, mockSubscription, inboundConsumer.sub)
	mockClient.AssertExpectations(t)
}

func TestInboundConsumer_Start_Error(t *testing.T) {
	mockClient, router := setupTest(t)
	organizationID := "test-org-start-err"
	dlqSubject := "v1.dlq"
	cfg := config.ConsumerNatsConfig{
		Consumer:     "inbound-con-start-err-",
		QueueGroup:   "inbound-grp-start-err-",
		MaxDeliver:   5,
		NakBaseDelay: 1 * time.Second,
		NakMaxDelay:  10 * time.Second,
	}
	inboundConsumer := NewInboundConsumer(mockClient, router, cfg, organizationID, dlqSubject)

	expectedErr := errors.New("subscribe push failed")

	mockClient.On("SubscribePush", "", cfg.Consumer, cfg.QueueGroup, cfg.Stream, mock.AnythingOfType("nats.MsgHandler")).Return((*nats.Subscription)(nil), expectedErr)

	err := inboundConsumer.Start()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), expectedErr.Error())
	assert.Contains(t, err.Error(), "failed to subscribe inbound consumer")
	assert.Nil(t, inboundConsumer.sub)
	mockClient.AssertExpectations(t)
}

func TestInboundConsumer_Stop(t *testing.T) {
	mockClient, router := setupTest(t)
	organizationID := "test-org-stop"
	dlqSubject := "v1.dlq"
	cfg := config.ConsumerNatsConfig{Consumer: "inbound-con-stop-", MaxDeliver: 5}
	inboundConsumer := NewInboundConsumer(mockClient, router, cfg, organizationID, dlqSubject)

	// Set the subscription handle using the helper (returns nil)
	inboundConsumer.sub = clientmock.MockSubscription()

	ctx := inboundConsumer.base.ctx
	inboundConsumer.Stop()

	select {
	case <-ctx.Done():
		// Context canceled as expected
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "Context was not canceled within timeout")
	}
	mockClient.AssertExpectations(t)
}

// --- Tests for determineAckNakAction ---

func TestDetermineAckNakAction(t *testing.T) {
	baseDelay := 1 * time.Second
	maxDelay := 16 * time.Second
	maxDeliver := 5

	tests := []struct {
		name           string
		processingErr  error
		numDelivered   uint64
		expectedAction AckNakAction
		expectedDelay  time.Duration
	}{
		{
			name:           "Success case",
			processingErr:  nil,
			numDelivered:   1,
			expectedAction: ActionAck,
			expectedDelay:  0,
		},
		{
			name:           "Retryable error, first attempt",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   1,
			expectedAction: ActionNakDelay,
			expectedDelay:  1 * time.Second, // base * 2^0
		},
		{
			name:           "Retryable error, second attempt",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   2,
			expectedAction: ActionNakDelay,
			expectedDelay:  2 * time.Second, // base * 2^1
		},
		{
			name:           "Retryable error, third attempt",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   3,
			expectedAction: ActionNakDelay,
			expectedDelay:  4 * time.Second, // base * 2^2
		},
		{
			name:           "Retryable error, fourth attempt",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   4,
			expectedAction: ActionNakDelay,
			expectedDelay:  8 * time.Second, // base * 2^3
		},
		{
			name:           "Retryable error, fifth attempt (maxDeliver reached)",
			processingErr:  apperrors.NewRetryable(errors.New("transient"), "transient"),
			numDelivered:   5, // = maxDeliver
			expectedAction: ActionDLQ,
			expectedDelay:  0,
		},
		{
			name:           "Fatal error, first attempt",
			processingErr:  apperrors.NewFatal(errors.New("fatal"), "fatal"),
			numDelivered:   1,
			expectedAction: ActionDLQ,
			expectedDelay:  0,
		},
		{
			name:           "Fatal error, later attempt",
			processingErr:  apperrors.NewFatal(errors.New("fatal"), "fatal"),
			numDelivered:   3,
			expectedAction: ActionDLQ,
			expectedDelay:  0,
		},
		{
			name:           "Non-app error (treated as fatal), first attempt",
			processingErr:  errors.New("some other error"),
			numDelivered:   1,
			expectedAction: ActionDLQ,
			expectedDelay:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := &nats.MsgMetadata{
				NumDelivered: tt.numDelivered,
			}
			action, delay := determineAckNakAction(tt.processingErr, metadata, maxDeliver, baseDelay, maxDelay)
			assert.Equal(t, tt.expectedAction, action, "Action should match")
			assert.Equal(t, tt.expectedDelay, delay, "Delay should match")
		})
	}
}

// --- Helper Function Tests ---

func TestModifySubjects(t *testing.T) {
	tests := []struct {
		name                 string
		inputSubjects        []string
		organizationID       string
		expectedStreamSubs   []string
		expectedConsumerSubs []string
	}{
		{
			name:                 "basic case",
			inputSubjects:        []string{"v1.inbound.message", "v1.inbound.status"},
			organizationID:       "orgA",
			expectedStreamSubs:   []string{"v1.inbound.message.*", "v1.inbound.status.*"},
			expectedConsumerSubs: []string{"v1.inbound.message.orgA", "v1.inbound.status.orgA"},
		},
		{
			name:                 "single subject",
			inputSubjects:        []string{"v1.inbound.message"},
			organizationID:       "orgB",
			expectedStreamSubs:   []string{"v1.inbound.message.*"},
			expectedConsumerSubs: []string{"v1.inbound.message.orgB"},
		},
		{
			name:                 "empty input list",
			inputSubjects:        []string{},
			organizationID:       "orgC",
			expectedStreamSubs:   []string{},
			expectedConsumerSubs: []string{},
		},
		{
			name:                 "empty organization ID", // Should still append dot
			inputSubjects:        []string{"v1.inbound.message"},
			organizationID:       "",
			expectedStreamSubs:   []string{"v1.inbound.message.*"},
			expectedConsumerSubs: []string{"v1.inbound.message."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streamSubs, consumerSubs := modifySubjects(tt.inputSubjects, tt.organizationID)
			assert.ElementsMatch(t, tt.expectedStreamSubs, streamSubs, "Stream subjects should match")
			assert.ElementsMatch(t, tt.expectedConsumerSubs, consumerSubs, "Consumer subjects should match")
		})
	}
}
