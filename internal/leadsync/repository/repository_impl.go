package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	pkgdb "github.com/smallbiznis/orderlead/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.DeliveryRepository {
	return &repo{}
}

// Record inserts a delivery. A redelivery of the same webhook id updates the
// existing row and bumps its attempt count; record is refreshed from the
// stored row in that case.
func (r *repo) Record(ctx context.Context, db *gorm.DB, record *domain.DeliveryRecord) error {
	if db == nil {
		return errors.New("delivery log database is not configured")
	}

	err := db.WithContext(ctx).Create(record).Error
	if err == nil {
		return nil
	}
	if record.WebhookID == nil || !pkgdb.IsDuplicateKeyErr(err) {
		return err
	}

	err = db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET order_id = ?, lead_id = ?, action = ?, status = ?, error = ?, payload = ?,
		     attempts = attempts + 1, processed_at = ?
		 WHERE webhook_id = ?`,
		record.OrderID,
		record.LeadID,
		record.Action,
		record.Status,
		record.Error,
		record.Payload,
		record.ProcessedAt,
		*record.WebhookID,
	).Error
	if err != nil {
		return err
	}

	var stored domain.DeliveryRecord
	if err := db.WithContext(ctx).
		Where("webhook_id = ?", *record.WebhookID).
		First(&stored).Error; err != nil {
		return err
	}
	*record = stored
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.DeliveryFilter) ([]*domain.DeliveryRecord, error) {
	if db == nil {
		return nil, errors.New("delivery log database is not configured")
	}

	var records []*domain.DeliveryRecord
	stmt := db.WithContext(ctx).
		Model(&domain.DeliveryRecord{}).
		Omit("payload")
	if filter.OrderID != "" {
		stmt = stmt.Where("order_id = ?", filter.OrderID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.BeforeID != 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	if err := stmt.Order("id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
