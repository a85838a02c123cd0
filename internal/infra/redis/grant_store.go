package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/safeher/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	grantGranted = "granted"
	grantDenied  = "denied"
)

// GrantStore records permission answers per device.
type GrantStore struct {
	client *goredis.Client
}

func NewGrantStore(client *goredis.Client) (*GrantStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &GrantStore{client: client}, nil
}

func (s *GrantStore) SetGranted(ctx context.Context, deviceID string, capability domain.Capability, granted bool) error {
	value := grantDenied
	if granted {
		value = grantGranted
	}
	if err := s.client.HSet(ctx, grantKey(deviceID), capability.String(), value).Err(); err != nil {
		return fmt.Errorf("failed to store %s grant: %w", capability, err)
	}
	return nil
}

// IsGranted reports false for capabilities that were never answered.
func (s *GrantStore) IsGranted(ctx context.Context, deviceID string, capability domain.Capability) (bool, error) {
	value, err := s.client.HGet(ctx, grantKey(deviceID), capability.String()).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s grant: %w", capability, err)
	}
	return value == grantGranted, nil
}

func (s *GrantStore) All(ctx context.Context, deviceID string) (map[domain.Capability]bool, error) {
	values, err := s.client.HGetAll(ctx, grantKey(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}

	grants := map[domain.Capability]bool{
		domain.CapabilityLocation:      false,
		domain.CapabilitySMS:           false,
		domain.CapabilityNotifications: false,
	}
	for key, value := range values {
		capability := domain.Capability(key)
		if !capability.IsValid() {
			continue
		}
		grants[capability] = value == grantGranted
	}
	return grants, nil
}

func grantKey(deviceID string) string {
	return "safeher:permissions:" + normalizeDevice(deviceID)
}
