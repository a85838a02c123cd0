package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/safeher/internal/domain"
	"gorm.io/gorm"
)

type ContactRepository interface {
	Create(ctx context.Context, c *domain.Contact) error
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Contact, error)
	List(ctx context.Context) ([]domain.Contact, error)
	Update(ctx context.Context, c *domain.Contact) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type GormContactRepo struct {
	db *gorm.DB
}

func NewGormContactRepo(db *gorm.DB) *GormContactRepo {
	return &GormContactRepo{db: db}
}

// Create appends the contact after the last stored one.
func (r *GormContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	model := contactModelFromDomain(c)
	if model == nil {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var next int
		if err := tx.Model(&ContactModel{}).
			Select("COALESCE(MAX(position), -1) + 1").
			Scan(&next).Error; err != nil {
			return err
		}
		model.Position = next
		return tx.Create(model).Error
	})
	if isDuplicateKey(err) {
		return phoneTaken(c.Phone)
	}
	if err != nil {
		return err
	}

	*c = *contactModelToDomain(model)
	return nil
}

func (r *GormContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	var model ContactModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return contactModelToDomain(&model), nil
}

func (r *GormContactRepo) GetByPhone(ctx context.Context, phone string) (*domain.Contact, error) {
	var model ContactModel
	err := r.db.WithContext(ctx).
		Where("phone = ?", phone).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return contactModelToDomain(&model), nil
}

// List returns contacts in display order.
func (r *GormContactRepo) List(ctx context.Context) ([]domain.Contact, error) {
	var models []ContactModel
	err := r.db.WithContext(ctx).
		Order("position ASC").
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	contacts := make([]domain.Contact, 0, len(models))
	for i := range models {
		contacts = append(contacts, *contactModelToDomain(&models[i]))
	}

	return contacts, nil
}

func (r *GormContactRepo) Update(ctx context.Context, c *domain.Contact) error {
	if c == nil {
		return domain.ErrNotFound
	}

	result := r.db.WithContext(ctx).
		Model(&ContactModel{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{
			"name":       c.Name,
			"phone":      c.Phone,
			"updated_at": c.UpdatedAt,
		})
	if isDuplicateKey(result.Error) {
		return phoneTaken(c.Phone)
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormContactRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&ContactModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormContactRepo) Clear(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ContactModel{})
	return result.RowsAffected, result.Error
}

func (r *GormContactRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&ContactModel{}).Count(&total).Error
	return total, err
}

// isDuplicateKey reports a violation of idx_contacts_phone. SQLite opened without
// TranslateError only surfaces the raw driver message.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func phoneTaken(phone string) error {
	return fmt.Errorf("%w: phone %s is already a contact", domain.ErrConflict, phone)
}
