package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/safeher/internal/domain"
	"gorm.io/gorm"
)

type ListAlertsParams struct {
	Outcome  *domain.Outcome
	Page     int
	PageSize int
}

type AlertRepository interface {
	Create(ctx context.Context, a *domain.AlertAttempt) error
	GetByID(ctx context.Context, id string) (*domain.AlertAttempt, error)
	List(ctx context.Context, params ListAlertsParams) ([]domain.AlertAttempt, int64, error)
}

type GormAlertRepo struct {
	db *gorm.DB
}

func NewGormAlertRepo(db *gorm.DB) *GormAlertRepo {
	return &GormAlertRepo{db: db}
}

func (r *GormAlertRepo) Create(ctx context.Context, a *domain.AlertAttempt) error {
	model := alertModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *alertModelToDomain(model)
	}
	return nil
}

func (r *GormAlertRepo) GetByID(ctx context.Context, id string) (*domain.AlertAttempt, error) {
	var model AlertAttemptModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return alertModelToDomain(&model), nil
}

// List returns alert history, newest first.
func (r *GormAlertRepo) List(ctx context.Context, params ListAlertsParams) ([]domain.AlertAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&AlertAttemptModel{})

	if params.Outcome != nil {
		query = query.Where("outcome = ?", *params.Outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []AlertAttemptModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	attempts := make([]domain.AlertAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *alertModelToDomain(&models[i]))
	}

	return attempts, total, nil
}
