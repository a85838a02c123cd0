package permission

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/safeher/internal/domain"
	"go.uber.org/zap"
)

type GrantStore interface {
	SetGranted(ctx context.Context, deviceID string, capability domain.Capability, granted bool) error
	IsGranted(ctx context.Context, deviceID string, capability domain.Capability) (bool, error)
	All(ctx context.Context, deviceID string) (map[domain.Capability]bool, error)
}

// Prompter shows the platform permission dialog on the phone.
type Prompter interface {
	RequestPermission(ctx context.Context, capability domain.Capability) (bool, error)
}

// Gateway answers "may we use capability" from recorded grants and asks the user when
// asked to.
type Gateway struct {
	grants   GrantStore
	prompter Prompter
	deviceID string
	logger   *zap.Logger
}

func NewGateway(grants GrantStore, prompter Prompter, deviceID string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{grants: grants, prompter: prompter, deviceID: deviceID, logger: logger}
}

func (g *Gateway) IsGranted(ctx context.Context, capability domain.Capability) (bool, error) {
	if !capability.IsValid() {
		return false, fmt.Errorf("%w: invalid capability %q", domain.ErrValidation, capability)
	}
	return g.grants.IsGranted(ctx, g.deviceID, capability)
}

// Request prompts the user and records the answer.
func (g *Gateway) Request(ctx context.Context, capability domain.Capability) (bool, error) {
	if !capability.IsValid() {
		return false, fmt.Errorf("%w: invalid capability %q", domain.ErrValidation, capability)
	}
	if g.prompter == nil {
		return false, fmt.Errorf("no permission prompter configured")
	}

	granted, err := g.prompter.RequestPermission(ctx, capability)
	if err != nil {
		return false, fmt.Errorf("failed to request %s permission: %w", capability, err)
	}
	if err := g.grants.SetGranted(ctx, g.deviceID, capability, granted); err != nil {
		return granted, err
	}

	g.logger.Info("permission answered",
		zap.String("capability", capability.String()),
		zap.Bool("granted", granted),
	)
	return granted, nil
}

// Ensure returns the recorded grant, prompting once when it is missing.
func (g *Gateway) Ensure(ctx context.Context, capability domain.Capability) (bool, error) {
	granted, err := g.IsGranted(ctx, capability)
	if err != nil || granted {
		return granted, err
	}
	return g.Request(ctx, capability)
}

func (g *Gateway) All(ctx context.Context) (map[domain.Capability]bool, error) {
	return g.grants.All(ctx, g.deviceID)
}
