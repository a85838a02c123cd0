package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/repository"
	"go.uber.org/zap"
)

const maxContacts = 20

// ContactService manages the emergency contact list.
type ContactService struct {
	contacts repository.ContactRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewContactService(contacts repository.ContactRepository, logger *zap.Logger) (*ContactService, error) {
	if contacts == nil {
		return nil, fmt.Errorf("contact repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactService{contacts: contacts, logger: logger, now: time.Now}, nil
}

// Add appends a contact. A phone already on the list returns domain.ErrConflict.
func (s *ContactService) Add(ctx context.Context, name string, phone string) (*domain.Contact, error) {
	contact := &domain.Contact{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(name),
		Phone: domain.NormalizePhone(phone),
	}
	if err := contact.Validate(); err != nil {
		return nil, err
	}

	total, err := s.contacts.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total >= maxContacts {
		return nil, fmt.Errorf("%w: at most %d contacts allowed", domain.ErrValidation, maxContacts)
	}
	if err := s.ensurePhoneFree(ctx, contact.Phone, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	if err := s.contacts.Create(ctx, contact); err != nil {
		return nil, err
	}

	s.logger.Info("contact added", zap.String("contactId", contact.ID), zap.Int("position", contact.Position))
	return contact, nil
}

func (s *ContactService) Update(ctx context.Context, id string, name string, phone string) (*domain.Contact, error) {
	current, err := s.contacts.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.Name = strings.TrimSpace(name)
	updated.Phone = domain.NormalizePhone(phone)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if updated.Phone != current.Phone {
		if err := s.ensurePhoneFree(ctx, updated.Phone, updated.ID); err != nil {
			return nil, err
		}
	}

	updated.UpdatedAt = s.now().UTC()
	if err := s.contacts.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *ContactService) Remove(ctx context.Context, id string) error {
	if err := s.contacts.Delete(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.logger.Info("contact removed", zap.String("contactId", id))
	return nil
}

func (s *ContactService) Get(ctx context.Context, id string) (*domain.Contact, error) {
	return s.contacts.GetByID(ctx, strings.TrimSpace(id))
}

// List returns contacts in insertion order.
func (s *ContactService) List(ctx context.Context) ([]domain.Contact, error) {
	return s.contacts.List(ctx)
}

func (s *ContactService) Count(ctx context.Context) (int64, error) {
	return s.contacts.Count(ctx)
}

func (s *ContactService) Clear(ctx context.Context) (int64, error) {
	removed, err := s.contacts.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("contacts cleared", zap.Int64("removed", removed))
	return removed, nil
}

func (s *ContactService) ensurePhoneFree(ctx context.Context, phone string, selfID string) error {
	existing, err := s.contacts.GetByPhone(ctx, phone)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return fmt.Errorf("%w: phone %s is already a contact", domain.ErrConflict, phone)
	}
	return nil
}
