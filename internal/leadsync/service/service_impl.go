package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderlead/internal/clock"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/leadsync/mapping"
	"github.com/smallbiznis/orderlead/internal/leadsync/payload"
	obscontext "github.com/smallbiznis/orderlead/internal/observability/context"
	obslogger "github.com/smallbiznis/orderlead/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/orderlead/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeIgnored   = "ignored"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
	outcomeSucceeded = "succeeded"
)

type Params struct {
	fx.In

	DB          *gorm.DB `optional:"true"`
	Log         *zap.Logger
	GenID       *snowflake.Node
	Parser      *payload.Parser
	Builder     *payload.Builder
	Mappings    mapping.Source
	Coordinator *Coordinator
	Repo        domain.DeliveryRepository
	ObsMetrics  *obsmetrics.Metrics         `optional:"true"`
	SyncMetrics *obsmetrics.LeadSyncMetrics `optional:"true"`
	Clock       clock.Clock                 `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	parser      *payload.Parser
	builder     *payload.Builder
	mappings    mapping.Source
	coordinator *Coordinator
	repo        domain.DeliveryRepository
	obsMetrics  *obsmetrics.Metrics
	syncMetrics *obsmetrics.LeadSyncMetrics
	clock       clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("leadsync.service"),
		genID:       p.GenID,
		parser:      p.Parser,
		builder:     p.Builder,
		mappings:    p.Mappings,
		coordinator: p.Coordinator,
		repo:        p.Repo,
		obsMetrics:  p.ObsMetrics,
		syncMetrics: p.SyncMetrics,
		clock:       clk,
	}
}

// HandleDelivery runs one webhook through the pipeline. Deliveries for other
// topics are acknowledged without touching the CRM.
func (s *Service) HandleDelivery(ctx context.Context, delivery domain.Delivery) (*domain.Result, error) {
	receivedAt := s.clock.Now()
	topic := strings.TrimSpace(delivery.Topic)
	ctx = obscontext.WithWebhookID(ctx, delivery.WebhookID)

	if topic != domain.TopicOrderCreate {
		obslogger.WithContext(ctx, s.log).Info("ignoring webhook topic", zap.String("topic", topic))
		s.obsMetrics.RecordDelivery(ctx, topic, outcomeIgnored)
		return &domain.Result{Ignored: true}, nil
	}

	order, err := s.parser.Parse(delivery.Body)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("rejecting webhook payload", zap.Error(err))
		s.obsMetrics.RecordDelivery(ctx, topic, outcomeRejected)
		s.syncMetrics.IncDeliveryError(err)
		return nil, err
	}

	ctx = obscontext.WithOrderID(ctx, order.ID)
	log := obslogger.WithContext(ctx, s.log)
	log.Info("processing order", zap.Int("line_items", len(order.LineItems)))

	for _, item := range order.LineItems {
		s.obsMetrics.RecordLineItem(ctx, mapping.Classify(item.Name).String())
	}

	lead := s.builder.Build(order, s.mappings.Current())
	upserted, err := s.coordinator.Upsert(ctx, lead)

	s.recordDelivery(ctx, delivery, order.ID, receivedAt, upserted, err)

	if err != nil {
		log.Error("failed to sync order to crm", zap.Error(err))
		s.obsMetrics.RecordDelivery(ctx, topic, outcomeFailed)
		s.syncMetrics.IncDeliveryError(err)
		return nil, err
	}

	s.obsMetrics.RecordDelivery(ctx, topic, outcomeSucceeded)
	s.obsMetrics.RecordUpsert(ctx, string(upserted.Action))
	log.Info("order synced to crm",
		zap.String("lead_id", upserted.LeadID),
		zap.String("action", string(upserted.Action)),
	)

	return &domain.Result{
		OrderID: order.ID,
		LeadID:  upserted.LeadID,
		Action:  upserted.Action,
	}, nil
}

// ListDeliveries reads the delivery log, newest first.
func (s *Service) ListDeliveries(ctx context.Context, filter domain.DeliveryFilter) ([]*domain.DeliveryRecord, error) {
	if s.db == nil {
		return nil, domain.ErrDeliveryLogDisabled
	}
	return s.repo.List(ctx, s.db, filter)
}

// recordDelivery writes the delivery log entry. Failures are logged and
// counted but never change the webhook response.
func (s *Service) recordDelivery(ctx context.Context, delivery domain.Delivery, orderID string, receivedAt time.Time, upserted domain.UpsertResult, upsertErr error) {
	if s.db == nil || s.repo == nil {
		return
	}

	record := &domain.DeliveryRecord{
		ID:          s.genID.Generate(),
		Topic:       delivery.Topic,
		ShopDomain:  delivery.ShopDomain,
		OrderID:     orderID,
		LeadID:      upserted.LeadID,
		Action:      string(upserted.Action),
		Status:      domain.DeliveryStatusSucceeded,
		Payload:     payloadJSON(delivery.Body),
		Attempts:    1,
		ReceivedAt:  receivedAt,
		ProcessedAt: s.clock.Now(),
	}
	if webhookID := strings.TrimSpace(delivery.WebhookID); webhookID != "" {
		record.WebhookID = &webhookID
	}
	if upsertErr != nil {
		record.Status = domain.DeliveryStatusFailed
		record.Error = upsertErr.Error()
	}

	if err := s.repo.Record(ctx, s.db, record); err != nil {
		s.syncMetrics.IncDeliveryLogError(err)
		obslogger.WithContext(ctx, s.log).Warn("failed to record delivery", zap.Error(err))
	}
}

func payloadJSON(body []byte) datatypes.JSON {
	if !json.Valid(body) {
		return nil
	}
	return datatypes.JSON(body)
}

var _ domain.Service = (*Service)(nil)
var _ domain.DeliveryLog = (*Service)(nil)
