package service

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/leadsync/lock"
	obscontext "github.com/smallbiznis/orderlead/internal/observability/context"
	obsmetrics "github.com/smallbiznis/orderlead/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const lockKeyPrefix = "order:"

// Coordinator performs the lookup-then-write against the CRM while holding a
// lock on the order id, so concurrent deliveries of one order produce a
// single lead.
type Coordinator struct {
	client      domain.LeadClient
	locker      domain.Locker
	backend     string
	log         *zap.Logger
	tracer      trace.Tracer
	syncMetrics *obsmetrics.LeadSyncMetrics
}

func NewCoordinator(client domain.LeadClient, locker domain.Locker, log *zap.Logger, syncMetrics *obsmetrics.LeadSyncMetrics) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	backend := obsmetrics.LockBackendMemory
	if _, ok := locker.(*lock.RedisLocker); ok {
		backend = obsmetrics.LockBackendRedis
	}
	return &Coordinator{
		client:      client,
		locker:      locker,
		backend:     backend,
		log:         log.Named("leadsync.coordinator"),
		tracer:      otel.Tracer("orderlead/leadsync"),
		syncMetrics: syncMetrics,
	}
}

// Upsert updates the lead whose external id field equals the order id, or
// creates one if none exists. Exactly one write is issued per call.
func (c *Coordinator) Upsert(ctx context.Context, lead domain.LeadPayload) (result domain.UpsertResult, err error) {
	orderID := lead.OrderID
	if orderID == "" {
		return domain.UpsertResult{}, domain.NewValidationError("lead payload has no order id", domain.ErrMissingOrderID)
	}

	ctx, span := c.tracer.Start(ctx, "leadsync.upsert", trace.WithAttributes(
		attribute.String("order_id", orderID),
		attribute.String("webhook_id", obscontext.WebhookIDFromContext(ctx)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upsert failed")
		} else {
			span.SetAttributes(attribute.String("lead.action", string(result.Action)))
		}
		span.End()
	}()

	waitStart := time.Now()
	release, err := c.locker.Lock(ctx, lockKeyPrefix+orderID)
	c.syncMetrics.ObserveLockWait(c.backend, time.Since(waitStart))
	if err != nil {
		return domain.UpsertResult{}, domain.NewUnexpectedError(orderID, "failed to acquire order lock", err)
	}
	defer release()

	existing, err := c.client.ListLeads(ctx, domain.ListLeadsRequest{
		Filter: map[string]string{lead.ExternalIDField: orderID},
		Select: []string{"ID"},
	})
	if err != nil {
		return domain.UpsertResult{}, upstreamError(orderID, "failed to search existing leads", err)
	}

	if len(existing) > 0 {
		leadID := existing[0].ID
		if len(existing) > 1 {
			c.log.Warn("multiple leads share an order id, updating the first",
				zap.String("order_id", orderID),
				zap.Int("matches", len(existing)),
			)
		}
		if err := c.client.UpdateLead(ctx, leadID, lead.Fields); err != nil {
			return domain.UpsertResult{}, upstreamError(orderID, "failed to update lead "+leadID, err)
		}
		c.log.Info("lead updated", zap.String("order_id", orderID), zap.String("lead_id", leadID))
		return domain.UpsertResult{LeadID: leadID, Action: domain.UpsertActionUpdated}, nil
	}

	leadID, err := c.client.AddLead(ctx, lead.Fields)
	if err != nil {
		return domain.UpsertResult{}, upstreamError(orderID, "failed to create lead", err)
	}
	c.log.Info("lead created", zap.String("order_id", orderID), zap.String("lead_id", leadID))
	return domain.UpsertResult{LeadID: leadID, Action: domain.UpsertActionCreated}, nil
}

// upstreamError classifies CRM failures. Cancellation by the caller stays
// unexpected so it is not reported as a CRM outage.
func upstreamError(orderID, message string, err error) error {
	if errors.Is(err, context.Canceled) {
		return domain.NewUnexpectedError(orderID, message, err)
	}
	return domain.NewUpstreamError(orderID, message, err)
}
