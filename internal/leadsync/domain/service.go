package domain

import (
	"context"

	"gorm.io/gorm"
)

// Service ingests order webhooks and keeps one CRM lead per order.
type Service interface {
	HandleDelivery(ctx context.Context, delivery Delivery) (*Result, error)
}

type ListLeadsRequest struct {
	Filter map[string]string
	Select []string
}

// LeadClient is the subset of the CRM lead API the pipeline depends on.
type LeadClient interface {
	ListLeads(ctx context.Context, req ListLeadsRequest) ([]LeadRef, error)
	AddLead(ctx context.Context, fields LeadFields) (string, error)
	UpdateLead(ctx context.Context, id string, fields LeadFields) error
}

// Locker serialises work on a single key. The returned release function must
// be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// DeliveryRepository persists the webhook delivery log.
type DeliveryRepository interface {
	Record(ctx context.Context, db *gorm.DB, record *DeliveryRecord) error
	List(ctx context.Context, db *gorm.DB, filter DeliveryFilter) ([]*DeliveryRecord, error)
}

// DeliveryLog is the read side of the delivery log exposed over HTTP.
type DeliveryLog interface {
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]*DeliveryRecord, error)
}
