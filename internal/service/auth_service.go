package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/safeher/internal/domain"
	"go.uber.org/zap"
)

type OTPBackend interface {
	SendOTP(ctx context.Context, phone string) (string, error)
	VerifyOTP(ctx context.Context, phone string, sessionID string, code string) (string, error)
}

type SessionStore interface {
	SaveOTPSession(ctx context.Context, sessionID string, phone string) error
	TakeOTPSession(ctx context.Context, sessionID string) (string, error)
	SaveToken(ctx context.Context, token string, phone string) error
	LookupToken(ctx context.Context, token string) (string, error)
	RevokeToken(ctx context.Context, token string) error
}

// AuthService signs a phone number in with a one-time code.
type AuthService struct {
	backend  OTPBackend
	sessions SessionStore
	logger   *zap.Logger
}

func NewAuthService(backend OTPBackend, sessions SessionStore, logger *zap.Logger) (*AuthService, error) {
	if backend == nil {
		return nil, fmt.Errorf("otp backend is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{backend: backend, sessions: sessions, logger: logger}, nil
}

// SendOTP texts a code to phone and returns the session id to verify it against.
func (s *AuthService) SendOTP(ctx context.Context, phone string) (string, error) {
	normalized := domain.NormalizePhone(phone)
	probe := domain.Contact{Name: "-", Phone: normalized}
	if err := probe.Validate(); err != nil {
		return "", err
	}

	sessionID, err := s.backend.SendOTP(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("failed to send otp: %w", err)
	}
	if err := s.sessions.SaveOTPSession(ctx, sessionID, normalized); err != nil {
		return "", err
	}
	return sessionID, nil
}

// Verify exchanges a code for a token. A wrong code keeps the session open for
// another try and returns domain.ErrUnauthorized.
func (s *AuthService) Verify(ctx context.Context, sessionID string, code string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	code = strings.TrimSpace(code)
	if sessionID == "" || code == "" {
		return "", fmt.Errorf("%w: session id and code are required", domain.ErrValidation)
	}

	phone, err := s.sessions.TakeOTPSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: otp session expired", domain.ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}

	token, err := s.backend.VerifyOTP(ctx, phone, sessionID, code)
	if err != nil {
		s.restoreSession(ctx, sessionID, phone)
		return "", fmt.Errorf("failed to verify otp: %w", err)
	}
	if token == "" {
		s.restoreSession(ctx, sessionID, phone)
		return "", fmt.Errorf("%w: invalid otp", domain.ErrUnauthorized)
	}

	if err := s.sessions.SaveToken(ctx, token, phone); err != nil {
		return "", err
	}
	s.logger.Info("phone verified")
	return token, nil
}

// Authenticate returns the phone bound to token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrUnauthorized
	}
	phone, err := s.sessions.LookupToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrUnauthorized
	}
	return phone, err
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrUnauthorized
	}
	return s.sessions.RevokeToken(ctx, token)
}

func (s *AuthService) restoreSession(ctx context.Context, sessionID string, phone string) {
	if err := s.sessions.SaveOTPSession(ctx, sessionID, phone); err != nil {
		s.logger.Warn("failed to restore otp session", zap.Error(err))
	}
}
