package repository

import (
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
)

// ContactModel is the persistence model for the contacts table.
type ContactModel struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Name      string `gorm:"type:varchar(100);not null"`
	Phone     string `gorm:"type:varchar(20);not null;uniqueIndex:idx_contacts_phone"`
	Position  int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ContactModel) TableName() string {
	return "contacts"
}

// AlertAttemptModel is the persistence model for alert_attempts.
type AlertAttemptModel struct {
	ID               string             `gorm:"type:varchar(36);primaryKey"`
	Trigger          domain.TriggerKind `gorm:"type:varchar(10);not null"`
	ContactsTargeted []string           `gorm:"type:text;serializer:json"`
	Message          string             `gorm:"type:text;not null"`
	Outcome          domain.Outcome     `gorm:"type:varchar(12);not null"`
	SentCount        int                `gorm:"not null;default:0"`
	FailedRecipients []string           `gorm:"type:text;serializer:json"`
	Error            *string            `gorm:"type:text"`
	Latitude         *float64
	Longitude        *float64
	CreatedAt        time.Time
}

func (AlertAttemptModel) TableName() string {
	return "alert_attempts"
}

func contactModelFromDomain(c *domain.Contact) *ContactModel {
	if c == nil {
		return nil
	}

	return &ContactModel{
		ID:        c.ID,
		Name:      c.Name,
		Phone:     c.Phone,
		Position:  c.Position,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func contactModelToDomain(m *ContactModel) *domain.Contact {
	if m == nil {
		return nil
	}

	return &domain.Contact{
		ID:        m.ID,
		Name:      m.Name,
		Phone:     m.Phone,
		Position:  m.Position,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func alertModelFromDomain(a *domain.AlertAttempt) *AlertAttemptModel {
	if a == nil {
		return nil
	}

	return &AlertAttemptModel{
		ID:               a.ID,
		Trigger:          a.Trigger,
		ContactsTargeted: a.ContactsTargeted,
		Message:          a.Message,
		Outcome:          a.Outcome,
		SentCount:        a.SentCount,
		FailedRecipients: a.FailedRecipients,
		Error:            a.Error,
		Latitude:         a.Latitude,
		Longitude:        a.Longitude,
		CreatedAt:        a.CreatedAt,
	}
}

func alertModelToDomain(m *AlertAttemptModel) *domain.AlertAttempt {
	if m == nil {
		return nil
	}

	return &domain.AlertAttempt{
		ID:               m.ID,
		Trigger:          m.Trigger,
		ContactsTargeted: m.ContactsTargeted,
		Message:          m.Message,
		Outcome:          m.Outcome,
		SentCount:        m.SentCount,
		FailedRecipients: m.FailedRecipients,
		Error:            m.Error,
		Latitude:         m.Latitude,
		Longitude:        m.Longitude,
		CreatedAt:        m.CreatedAt,
	}
}
