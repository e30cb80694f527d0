package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for standard event metrics
	eventProcessingLabels = []string{"event_type", "organization_id", "consumer_type"}
	// Labels for tracking specific processing actions
	eventActionLabels = []string{"event_type", "organization_id", "consumer_type", "action", "error_type"}

	// Standard Event Counters
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_events_received_total",
			Help: "Total number of events received from NATS, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_events_processed_total",
			Help: "Total number of events successfully processed and acknowledged, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_events_failed_total",
			Help: "Total number of events that failed processing (resulting in Nack or error), labeled by consumer type.",
		},
		eventProcessingLabels,
	)

	// Histogram for Processing Duration
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_hub_event_processing_duration_seconds",
			Help:    "Histogram of event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)

	// Histogram for Routing Duration
	EventRoutingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_hub_event_routing_duration_seconds",
			Help:    "Histogram of event routing specific durations (time spent in router.Route).",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		eventProcessingLabels,
	)

	// Counter for Specific Actions
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_event_processing_actions_total",
			Help: "Total count of specific actions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)

	// Global metrics instance
	Metrics *metricsStore
)

// Metrics related to webhook ingress
var (
	webhookLabels = []string{"provider", "status"}

	webhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_webhook_requests_total",
			Help: "Total number of webhook requests received, labeled by provider and response status.",
		},
		webhookLabels,
	)
	webhookSignatureFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_webhook_signature_failures_total",
			Help: "Total number of webhook requests rejected for a bad or missing signature.",
		},
		[]string{"provider"},
	)
	webhookPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_webhook_publish_errors_total",
			Help: "Total number of queue publish failures after the webhook response was already sent.",
		},
		[]string{"provider"},
	)
)

// Metrics related to campaign fan-out
var (
	campaignLabels = []string{"organization_id"}

	campaignRecipientsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_campaign_recipients_sent_total",
			Help: "Total number of campaign recipients successfully delivered to the vendor.",
		},
		campaignLabels,
	)
	campaignRecipientsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_campaign_recipients_failed_total",
			Help: "Total number of campaign recipients whose vendor send failed.",
		},
		campaignLabels,
	)
	// Skips are recipients with no datasource row; they count toward neither
	// success nor failure, so they get their own counter.
	campaignRecipientsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_campaign_recipients_skipped_total",
			Help: "Total number of campaign recipients skipped because no datasource row matched their phone.",
		},
		campaignLabels,
	)
	campaignScheduleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_campaign_schedule_transitions_total",
			Help: "Total number of schedule status transitions, labeled by resulting status.",
		},
		[]string{"organization_id", "status"},
	)
	campaignFanoutDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_hub_campaign_fanout_duration_seconds",
			Help:    "Histogram of full fan-out durations per schedule run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		campaignLabels,
	)
)

// Metrics related to vendor HTTP calls
var (
	vendorLabels = []string{"provider", "operation", "status"}

	vendorCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_hub_vendor_call_duration_seconds",
			Help:    "Histogram of vendor API call durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		vendorLabels,
	)
)

// Metrics related to Gmail sync
var (
	gmailLabels = []string{"gmail_account"}

	gmailMessagesForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_gmail_messages_forwarded_total",
			Help: "Total number of Gmail messages forwarded to the queue.",
		},
		gmailLabels,
	)
	gmailMessagesDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_hub_gmail_messages_deduped_total",
			Help: "Total number of Gmail history records skipped because the message id was already in the ledger.",
		},
		gmailLabels,
	)
	gmailAccountsDeactivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversation_hub_gmail_accounts_deactivated_total",
		Help: "Total number of Gmail accounts deactivated after a terminal token refresh failure.",
	})
)

// Metrics related to DLQ processing
var (
	dlqFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlq_fetch_requests_total",
		Help: "Total number of fetch requests made to the DLQ stream.",
	})
	dlqFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlq_fetch_errors_total",
		Help: "Total number of errors encountered during DLQ fetch requests.",
	})
	dlqQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlq_queue_length",
		Help: "Current number of messages waiting in the internal DLQ worker channel.",
	})
	dlqWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlq_workers_active",
		Help: "Current number of active worker goroutines in the DLQ pool.",
	})

	dlqTenantLabels = []string{"organization_id"}

	dlqTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_tasks_submitted_total",
			Help: "Total number of tasks submitted to the DLQ worker pool.",
		},
		dlqTenantLabels,
	)
	dlqProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlq_processing_duration_seconds",
			Help:    "Histogram of processing durations for DLQ messages.",
			Buckets: prometheus.DefBuckets,
		},
		dlqTenantLabels,
	)
	dlqTaskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_task_retries_total",
			Help: "Total number of retry attempts (NAKs with delay) for DLQ messages.",
		},
		dlqTenantLabels,
	)
	dlqAcksSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_acks_success_total",
			Help: "Total number of successful acknowledgements (ACKs) for DLQ messages.",
		},
		dlqTenantLabels,
	)
	dlqAcksFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_acks_failure_total",
			Help: "Total number of failed acknowledgements (NAKs, Term) for DLQ messages (excluding retries).",
		},
		dlqTenantLabels,
	)
	dlqTasksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_tasks_dropped_total",
			Help: "Total number of DLQ messages dropped after exceeding max retries.",
		},
		dlqTenantLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "organization_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_hub_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// metricsStore holds references to all Prometheus metrics.
type metricsStore struct{}

// InitMetrics initializes and registers the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		return
	}

	metricsEnabled = true

	// Metrics are already auto-registered via promauto, so no explicit
	// registration is needed here.
	Metrics = &metricsStore{}
}

// IncEventsReceived increments the events received counter.
func IncEventsReceived(eventType, organizationID, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeOrg(organizationID), consumerType).Inc()
}

// IncEventsProcessed increments the events processed counter.
func IncEventsProcessed(eventType, organizationID, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeOrg(organizationID), consumerType).Inc()
}

// IncEventsFailed increments the events failed counter.
func IncEventsFailed(eventType, organizationID, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeOrg(organizationID), consumerType).Inc()
}

// sanitizeOrg ensures the organization label is valid or returns a default value.
func sanitizeOrg(organizationID string) string {
	if organizationID == "" {
		return "unknown"
	}
	return organizationID
}

// --- Webhook Metric Helpers ---

// IncWebhookRequest increments the webhook request counter.
func IncWebhookRequest(provider, status string) {
	if Metrics != nil {
		webhookRequestsTotal.WithLabelValues(provider, status).Inc()
	}
}

// IncWebhookSignatureFailure increments the bad-signature counter.
func IncWebhookSignatureFailure(provider string) {
	if Metrics != nil {
		webhookSignatureFailuresTotal.WithLabelValues(provider).Inc()
	}
}

// IncWebhookPublishError increments the post-response publish failure counter.
func IncWebhookPublishError(provider string) {
	if Metrics != nil {
		webhookPublishErrorsTotal.WithLabelValues(provider).Inc()
	}
}

// --- Campaign Metric Helpers ---

// IncCampaignRecipientSent increments the per-recipient success counter.
func IncCampaignRecipientSent(organizationID string) {
	if Metrics != nil {
		campaignRecipientsSentTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// IncCampaignRecipientFailed increments the per-recipient failure counter.
func IncCampaignRecipientFailed(organizationID string) {
	if Metrics != nil {
		campaignRecipientsFailedTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// IncCampaignRecipientSkipped increments the datasource-miss skip counter.
func IncCampaignRecipientSkipped(organizationID string) {
	if Metrics != nil {
		campaignRecipientsSkippedTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// IncCampaignScheduleTransition increments the schedule transition counter.
func IncCampaignScheduleTransition(organizationID, status string) {
	if Metrics != nil {
		campaignScheduleTransitionsTotal.WithLabelValues(sanitizeOrg(organizationID), status).Inc()
	}
}

// ObserveCampaignFanoutDuration records the duration of one full schedule fan-out.
func ObserveCampaignFanoutDuration(organizationID string, duration time.Duration) {
	if Metrics != nil {
		campaignFanoutDurationSeconds.WithLabelValues(sanitizeOrg(organizationID)).Observe(duration.Seconds())
	}
}

// --- Vendor Metric Helpers ---

// ObserveVendorCallDuration records the duration and outcome of a vendor API call.
func ObserveVendorCallDuration(provider, operation string, duration time.Duration, err error) {
	if Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	vendorCallDurationSeconds.WithLabelValues(provider, operation, status).Observe(duration.Seconds())
}

// --- Gmail Metric Helpers ---

// IncGmailMessagesForwarded increments the forwarded-message counter.
func IncGmailMessagesForwarded(accountID string) {
	if Metrics != nil {
		gmailMessagesForwardedTotal.WithLabelValues(accountID).Inc()
	}
}

// IncGmailMessagesDeduped increments the ledger-hit counter.
func IncGmailMessagesDeduped(accountID string) {
	if Metrics != nil {
		gmailMessagesDedupedTotal.WithLabelValues(accountID).Inc()
	}
}

// IncGmailAccountsDeactivated increments the terminal token failure counter.
func IncGmailAccountsDeactivated() {
	if Metrics != nil {
		gmailAccountsDeactivatedTotal.Inc()
	}
}

// --- DLQ Metric Helpers ---

// IncDlqFetchRequest increments the DLQ fetch request counter.
func IncDlqFetchRequest() {
	if Metrics != nil {
		dlqFetchRequestsTotal.Inc()
	}
}

// IncDlqFetchError increments the DLQ fetch error counter.
func IncDlqFetchError() {
	if Metrics != nil {
		dlqFetchErrorsTotal.Inc()
	}
}

// SetDlqQueueLength sets the current DLQ internal queue length.
func SetDlqQueueLength(length int) {
	if Metrics != nil {
		dlqQueueLength.Set(float64(length))
	}
}

// IncDlqTasksSubmitted increments the counter for tasks submitted to the pool.
func IncDlqTasksSubmitted(organizationID string) {
	if Metrics != nil {
		dlqTasksSubmittedTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// SetDlqWorkersActive sets the current number of active DLQ workers.
func SetDlqWorkersActive(count int) {
	if Metrics != nil {
		dlqWorkersActive.Set(float64(count))
	}
}

// ObserveDlqProcessingDuration records the processing time for a DLQ message.
func ObserveDlqProcessingDuration(organizationID string, duration time.Duration) {
	if Metrics != nil {
		dlqProcessingDurationSeconds.WithLabelValues(sanitizeOrg(organizationID)).Observe(duration.Seconds())
	}
}

// IncDlqTaskRetry increments the counter for DLQ message retry attempts.
func IncDlqTaskRetry(organizationID string) {
	if Metrics != nil {
		dlqTaskRetriesTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// IncDlqAckSuccess increments the counter for successful DLQ message ACKs.
func IncDlqAckSuccess(organizationID string) {
	if Metrics != nil {
		dlqAcksSuccessTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// IncDlqAckFailure increments the counter for failed DLQ message ACKs/TERMs (non-retry).
func IncDlqAckFailure(organizationID string) {
	if Metrics != nil {
		dlqAcksFailureTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// IncDlqTasksDropped increments the counter for DLQ messages dropped after max retries.
func IncDlqTasksDropped(organizationID string) {
	if Metrics != nil {
		dlqTasksDroppedTotal.WithLabelValues(sanitizeOrg(organizationID)).Inc()
	}
}

// --- Event Metric Helpers ---

// ObserveEventProcessingDuration records the processing time for a specific event.
func ObserveEventProcessingDuration(eventType, organizationID, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeOrg(organizationID), consumerType).Observe(duration.Seconds())
}

// ObserveEventRoutingDuration records the routing time for a specific event.
func ObserveEventRoutingDuration(eventType, organizationID, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventRoutingDurationSeconds.WithLabelValues(eventType, sanitizeOrg(organizationID), consumerType).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, organizationID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeOrg(organizationID), status).Observe(duration.Seconds())
}

// IncEventProcessingAction increments the counter for a specific processing outcome.
func IncEventProcessingAction(eventType, organizationID, consumerType, action, errorType string) {
	if !metricsEnabled {
		return
	}
	sanitizedErrorType := SanitizeErrorType(errorType)
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeOrg(organizationID), consumerType, action, sanitizedErrorType).Inc()
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	// If no error (e.g., for success actions), return "none"
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "signature"):
		return "signature"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
