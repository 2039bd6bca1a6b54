package repositories

import (
	"context"

	"github.com/anonto42/order-notify/backend/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DeliveryLogRepository defines the interface for delivery log operations
type DeliveryLogRepository interface {
	CreateDeliveryLog(ctx context.Context, entry *models.DeliveryLog) error
	GetDeliveryLogs(ctx context.Context, page, limit int) ([]models.DeliveryLog, int64, error)
	GetByRecordID(ctx context.Context, recordID string) ([]models.DeliveryLog, error)
}

type postgresDeliveryLogRepository struct {
	db *gorm.DB
}

func NewPostgresDeliveryLogRepository(db *gorm.DB) DeliveryLogRepository {
	return &postgresDeliveryLogRepository{db: db}
}

func (r *postgresDeliveryLogRepository) CreateDeliveryLog(ctx context.Context, entry *models.DeliveryLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "unable to save delivery log")
	}
	return nil
}

func (r *postgresDeliveryLogRepository) GetDeliveryLogs(ctx context.Context, page, limit int) ([]models.DeliveryLog, int64, error) {
	wrapMsg := "unable to list delivery logs"
	var entries []models.DeliveryLog
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.DeliveryLog{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, wrapMsg)
	}

	offset := (page - 1) * limit
	err := db.Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, wrapMsg)
	}

	return entries, total, nil
}

func (r *postgresDeliveryLogRepository) GetByRecordID(ctx context.Context, recordID string) ([]models.DeliveryLog, error) {
	var entries []models.DeliveryLog
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "unable to look up delivery logs")
	}
	return entries, nil
}
