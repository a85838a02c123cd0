package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

type cachedPosition struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// PositionCache keeps the last known fix per device.
type PositionCache struct {
	client *goredis.Client
	maxAge time.Duration
}

// NewPositionCache returns a cache whose entries expire after maxAge. Zero keeps them forever.
func NewPositionCache(client *goredis.Client, maxAge time.Duration) (*PositionCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &PositionCache{client: client, maxAge: maxAge}, nil
}

func (c *PositionCache) Store(ctx context.Context, deviceID string, p domain.Position) error {
	payload, err := json.Marshal(cachedPosition{
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Accuracy:   p.Accuracy,
		CapturedAt: p.CapturedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode position: %w", err)
	}

	if err := c.client.Set(ctx, positionKey(deviceID), payload, c.maxAge).Err(); err != nil {
		return fmt.Errorf("failed to store last known position: %w", err)
	}
	return nil
}

// LastKnown returns nil without error when the device has no cached fix.
func (c *PositionCache) LastKnown(ctx context.Context, deviceID string) (*domain.Position, error) {
	payload, err := c.client.Get(ctx, positionKey(deviceID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last known position: %w", err)
	}

	var cached cachedPosition
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode last known position: %w", err)
	}

	return &domain.Position{
		Latitude:   cached.Latitude,
		Longitude:  cached.Longitude,
		Accuracy:   cached.Accuracy,
		CapturedAt: cached.CapturedAt,
	}, nil
}

func positionKey(deviceID string) string {
	return "safeher:location:last:" + normalizeDevice(deviceID)
}

func normalizeDevice(deviceID string) string {
	id := strings.TrimSpace(deviceID)
	if id == "" {
		return "default"
	}
	return id
}
