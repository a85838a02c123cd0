package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	otpSessionPrefix = "safeher:auth:otp:"
	tokenPrefix      = "safeher:auth:token:"
)

// SessionStore holds pending OTP sessions and issued auth tokens.
type SessionStore struct {
	client   *goredis.Client
	otpTTL   time.Duration
	tokenTTL time.Duration
}

func NewSessionStore(client *goredis.Client, otpTTL time.Duration, tokenTTL time.Duration) (*SessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if otpTTL <= 0 {
		otpTTL = 5 * time.Minute
	}
	if tokenTTL <= 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	return &SessionStore{client: client, otpTTL: otpTTL, tokenTTL: tokenTTL}, nil
}

func (s *SessionStore) SaveOTPSession(ctx context.Context, sessionID string, phone string) error {
	if err := s.client.Set(ctx, otpSessionPrefix+sessionID, phone, s.otpTTL).Err(); err != nil {
		return fmt.Errorf("failed to save otp session: %w", err)
	}
	return nil
}

// TakeOTPSession returns the phone bound to sessionID and removes the session.
func (s *SessionStore) TakeOTPSession(ctx context.Context, sessionID string) (string, error) {
	phone, err := s.client.GetDel(ctx, otpSessionPrefix+sessionID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read otp session: %w", err)
	}
	return phone, nil
}

func (s *SessionStore) SaveToken(ctx context.Context, token string, phone string) error {
	if err := s.client.Set(ctx, tokenPrefix+token, phone, s.tokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

func (s *SessionStore) LookupToken(ctx context.Context, token string) (string, error) {
	phone, err := s.client.Get(ctx, tokenPrefix+token).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read auth token: %w", err)
	}
	return phone, nil
}

func (s *SessionStore) RevokeToken(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, tokenPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to revoke auth token: %w", err)
	}
	return nil
}
