package ingress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/usecase"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// maxBodyBytes caps webhook request bodies; Meta payloads are small and
// Pub/Sub envelopes carry only a pointer.
const maxBodyBytes = 1 << 20

// GmailSyncTrigger is the slice of the Gmail sync service the push endpoint
// calls inline.
type GmailSyncTrigger interface {
	SyncByEmail(ctx context.Context, emailAddress string) error
}

// Server is the webhook ingress: one HTTP endpoint per provider, each
// verifying authenticity, normalizing the provider payload into canonical
// events, and publishing them to JetStream. The 200 response is the
// acknowledgement boundary; publish failures are logged, never retried
// synchronously.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	platformRepo storage.PlatformRepo
	publisher    usecase.EventPublisher
	gmailSync    GmailSyncTrigger
	verifyToken  string
	baseLogger   *zap.Logger
}

// NewServer creates the webhook ingress server and registers all routes.
func NewServer(
	cfg *config.Config,
	platformRepo storage.PlatformRepo,
	publisher usecase.EventPublisher,
	gmailSync GmailSyncTrigger,
	baseLogger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router:       router,
		platformRepo: platformRepo,
		publisher:    publisher,
		gmailSync:    gmailSync,
		verifyToken:  cfg.Webhook.VerifyToken,
		baseLogger:   baseLogger.Named("ingress"),
	}

	router.HandleFunc("/webhook/whatsapp", s.handleVerifyToken).Methods(http.MethodGet)
	router.HandleFunc("/webhook/whatsapp", s.handleWhatsApp).Methods(http.MethodPost)
	router.HandleFunc("/webhook/messenger", s.handleVerifyToken).Methods(http.MethodGet)
	router.HandleFunc("/webhook/messenger", s.handleMessenger).Methods(http.MethodPost)
	router.HandleFunc("/webhook/gmail/push", s.handleGmailPush).Methods(http.MethodPost)
	router.HandleFunc("/webhook/webchat", s.handleWebchat).Methods(http.MethodPost)

	return s
}

// Router exposes the route table for httptest-driven tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving webhooks.
func (s *Server) Start() {
	go func() {
		s.baseLogger.Info("Starting webhook ingress server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.baseLogger.Error("Webhook ingress server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.baseLogger.Info("Stopping webhook ingress server")
	return s.httpServer.Shutdown(ctx)
}

// requestContext attaches a request id and request-scoped logger.
func (s *Server) requestContext(r *http.Request) context.Context {
	requestID := uuid.New().String()
	ctx := tenant.WithRequestID(r.Context(), requestID)
	return logger.WithLogger(ctx, s.baseLogger.With(zap.String("request_id", requestID)))
}

// readBody drains the request body with the ingress size cap.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// handleVerifyToken implements the Meta GET handshake: echo hub.challenge
// iff hub.verify_token matches the configured static token.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	s.baseLogger.Warn("Webhook verify-token handshake rejected",
		zap.String("hub_mode", mode),
		zap.String("path", r.URL.Path),
	)
	http.Error(w, "verification failed", http.StatusForbidden)
}

// verifyAndResolvePlatform looks up the channel's platform row and checks
// the request signature against its secret key. Returns nil when the caller
// should be rejected; the 403 has already been written.
func (s *Server) verifyAndResolvePlatform(ctx context.Context, w http.ResponseWriter, r *http.Request, provider, channelID string, body []byte) *model.Platform {
	log := logger.FromContext(ctx)

	platform, err := s.platformRepo.FindByLoginID(ctx, channelID)
	if err != nil {
		log.Warn("No platform for webhook channel",
			zap.String("provider", provider),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		observer.IncWebhookSignatureFailure(provider)
		http.Error(w, "unknown channel", http.StatusForbidden)
		return nil
	}

	if !VerifySignature(platform.SecretKey, body, r.Header.Get("X-Hub-Signature-256")) {
		log.Warn("Webhook signature verification failed",
			zap.String("provider", provider),
			zap.String("channel_id", channelID),
		)
		observer.IncWebhookSignatureFailure(provider)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return nil
	}
	return platform
}

// publishInbound publishes one canonical inbound message event.
func (s *Server) publishInbound(ctx context.Context, provider string, payload model.InboundMessagePayload) {
	s.publishEvent(ctx, provider, model.V1InboundMessage.WithOrganization(payload.OrganizationID), payload)
}

// publishStatus publishes one canonical delivery status event.
func (s *Server) publishStatus(ctx context.Context, provider string, payload model.StatusEventPayload) {
	s.publishEvent(ctx, provider, model.V1InboundStatus.WithOrganization(payload.OrganizationID), payload)
}

func (s *Server) publishEvent(ctx context.Context, provider, subject string, payload interface{}) {
	log := logger.FromContext(ctx)

	data, err := utils.MarshalJSON(payload)
	if err != nil {
		log.Error("Failed to marshal canonical event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		observer.IncWebhookPublishError(provider)
		return
	}
	if err := s.publisher.Publish(subject, data, nil); err != nil {
		// The provider already got its 200; the event is lost unless the
		// provider redelivers. Loud log plus metric is the contract here.
		log.Error("Failed to publish canonical event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		observer.IncWebhookPublishError(provider)
		return
	}
	log.Debug("Published canonical event", zap.String("subject", subject))
}
