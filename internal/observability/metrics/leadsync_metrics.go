package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"gorm.io/gorm"
)

const (
	DeliveryReasonValidation       = "validation"
	DeliveryReasonUnauthorized     = "unauthorized"
	DeliveryReasonUpstream         = "upstream"
	DeliveryReasonLockTimeout      = "lock_timeout"
	DeliveryReasonDeadlineExceeded = "deadline_exceeded"
	DeliveryReasonCanceled         = "canceled"
	DeliveryReasonUnknown          = "unknown"
)

const (
	DeliveryLogReasonUniqueViolation = "unique_violation"
	DeliveryLogReasonDB              = "db"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// LeadSyncMetrics captures CRM and lock health for the ingestion pipeline.
type LeadSyncMetrics struct {
	crmDuration      *prometheus.HistogramVec
	crmRequests      *prometheus.CounterVec
	lockWait         *prometheus.HistogramVec
	deliveryErrors   *prometheus.CounterVec
	deliveryLogError *prometheus.CounterVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	leadSyncMetricsOnce sync.Once
	leadSyncMetrics     *LeadSyncMetrics
)

// LeadSync returns the singleton lead sync metrics registry.
func LeadSync() *LeadSyncMetrics {
	return LeadSyncWithConfig(Config{})
}

// LeadSyncWithConfig returns the singleton lead sync metrics registry using config labels.
func LeadSyncWithConfig(cfg Config) *LeadSyncMetrics {
	leadSyncMetricsOnce.Do(func() {
		leadSyncMetrics = newLeadSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return leadSyncMetrics
}

// ResetLeadSyncMetricsForTest resets the singleton for tests.
func ResetLeadSyncMetricsForTest() {
	leadSyncMetricsOnce = sync.Once{}
	leadSyncMetrics = nil
}

func newLeadSyncMetrics(registerer prometheus.Registerer, cfg Config) *LeadSyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "orderlead"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	crmDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "orderlead_crm_request_duration_seconds",
		Help:        "CRM request latency by method.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		ConstLabels: constLabels,
	}, []string{"method"})
	crmRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "orderlead_crm_requests_total",
		Help:        "CRM requests by method and status class.",
		ConstLabels: constLabels,
	}, []string{"method", "status_class"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "orderlead_order_lock_wait_seconds",
		Help:        "Time spent waiting for the per-order lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"backend"})
	deliveryErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "orderlead_webhook_errors_total",
		Help:        "Failed webhook deliveries by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	deliveryLogError := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "orderlead_delivery_log_errors_total",
		Help:        "Delivery log writes that failed.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(crmDuration, crmRequests, lockWait, deliveryErrors, deliveryLogError)

	return &LeadSyncMetrics{
		crmDuration:      crmDuration,
		crmRequests:      crmRequests,
		lockWait:         lockWait,
		deliveryErrors:   deliveryErrors,
		deliveryLogError: deliveryLogError,
		lockWaitObserver: map[string]prometheus.Observer{
			LockBackendMemory: lockWait.WithLabelValues(LockBackendMemory),
			LockBackendRedis:  lockWait.WithLabelValues(LockBackendRedis),
		},
	}
}

// ObserveCRMRequest records one CRM round trip. A zero status means the
// request never produced a response.
func (m *LeadSyncMetrics) ObserveCRMRequest(method string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.crmDuration.WithLabelValues(method).Observe(duration.Seconds())
	m.crmRequests.WithLabelValues(method, statusClass(statusCode)).Inc()
}

func (m *LeadSyncMetrics) ObserveLockWait(backend string, duration time.Duration) {
	if m == nil {
		return
	}
	observer, ok := m.lockWaitObserver[backend]
	if !ok {
		observer = m.lockWait.WithLabelValues(backend)
	}
	observer.Observe(duration.Seconds())
}

func (m *LeadSyncMetrics) IncDeliveryError(err error) {
	if m == nil || err == nil {
		return
	}
	m.deliveryErrors.WithLabelValues(ClassifyDeliveryReason(err)).Inc()
}

func (m *LeadSyncMetrics) IncDeliveryLogError(err error) {
	if m == nil || err == nil {
		return
	}
	m.deliveryLogError.WithLabelValues(ClassifyDeliveryLogReason(err)).Inc()
}

// ClassifyDeliveryReason maps a pipeline error to a metric label.
func ClassifyDeliveryReason(err error) string {
	switch {
	case err == nil:
		return DeliveryReasonUnknown
	case errors.Is(err, domain.ErrLockTimeout):
		return DeliveryReasonLockTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return DeliveryReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return DeliveryReasonCanceled
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return DeliveryReasonValidation
	case domain.KindUnauthorized:
		return DeliveryReasonUnauthorized
	case domain.KindUpstream:
		return DeliveryReasonUpstream
	default:
		return DeliveryReasonUnknown
	}
}

// ClassifyDeliveryLogReason maps a persistence error to a metric label.
func ClassifyDeliveryLogReason(err error) string {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return DeliveryLogReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return DeliveryLogReasonUniqueViolation
	}
	return DeliveryLogReasonDB
}

func statusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}
