package location

import (
	"context"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second

	defaultGeocodeTimeout = 5 * time.Second

	SourceCache = "cache"
	SourceNone  = "none"
)

// PositionSource produces one live fix, honouring ctx for its deadline.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (*domain.Position, error)
}

type PositionCache interface {
	Store(ctx context.Context, deviceID string, p domain.Position) error
	LastKnown(ctx context.Context, deviceID string) (*domain.Position, error)
}

// PermissionEnsurer returns whether capability is granted, prompting the user once if not.
type PermissionEnsurer interface {
	Ensure(ctx context.Context, capability domain.Capability) (bool, error)
}

type grantChecker interface {
	IsGranted(ctx context.Context, capability domain.Capability) (bool, error)
}

type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, latitude float64, longitude float64) (string, error)
}

type ResolverOptions struct {
	DeviceID       string
	GeocodeTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// Resolver turns "where is the phone" into a Position: a live fix when one arrives in
// time, else the last cached fix of any age.
type Resolver struct {
	source      PositionSource
	cache       PositionCache
	permissions PermissionEnsurer
	geocoder    ReverseGeocoder

	deviceID       string
	geocodeTimeout time.Duration
	logger         *zap.Logger
	metrics        *observability.Metrics
}

func NewResolver(
	source PositionSource,
	cache PositionCache,
	permissions PermissionEnsurer,
	geocoder ReverseGeocoder,
	opts ResolverOptions,
) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	geocodeTimeout := opts.GeocodeTimeout
	if geocodeTimeout <= 0 {
		geocodeTimeout = defaultGeocodeTimeout
	}

	return &Resolver{
		source:         source,
		cache:          cache,
		permissions:    permissions,
		geocoder:       geocoder,
		deviceID:       opts.DeviceID,
		geocodeTimeout: geocodeTimeout,
		logger:         logger,
		metrics:        opts.Metrics,
	}
}

// Resolve returns domain.ErrLocationUnavailable when neither a fix nor a cached
// position can be produced.
func (r *Resolver) Resolve(ctx context.Context, timeout time.Duration) (*domain.Position, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := observability.WithContextLogger(r.logger, ctx)

	// The permission prompt and the fix share one deadline; an unanswered prompt
	// counts as not granted.
	fixCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if r.locationAllowed(fixCtx, logger) {
		if position := r.liveFix(fixCtx, timeout, logger); position != nil {
			return position, nil
		}
	}

	if r.cache != nil {
		cached, err := r.cache.LastKnown(ctx, r.deviceID)
		if err != nil {
			logger.Warn("failed to read last known position", zap.Error(err))
		}
		if cached != nil {
			logger.Info("using last known position",
				zap.Time("capturedAt", cached.CapturedAt),
			)
			r.metrics.IncLocationFallback(SourceCache)
			return cached, nil
		}
	}

	r.metrics.IncLocationFallback(SourceNone)
	return nil, domain.ErrLocationUnavailable
}

// Describe returns a street address for p, or its coordinates when lookup fails.
func (r *Resolver) Describe(ctx context.Context, p domain.Position) string {
	if r.geocoder == nil {
		return p.Coordinates()
	}

	geoCtx, cancel := context.WithTimeout(ctx, r.geocodeTimeout)
	defer cancel()

	address, err := r.geocoder.ReverseGeocode(geoCtx, p.Latitude, p.Longitude)
	if err != nil || address == "" {
		observability.WithContextLogger(r.logger, ctx).Debug("reverse geocode failed", zap.Error(err))
		return p.Coordinates()
	}
	return address
}

// Refresh takes a live fix and caches it without prompting for permission. It
// keeps the last known position fresh between dispatches.
func (r *Resolver) Refresh(ctx context.Context, timeout time.Duration) (*domain.Position, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if checker, ok := r.permissions.(grantChecker); ok {
		granted, err := checker.IsGranted(ctx, domain.CapabilityLocation)
		if err != nil {
			return nil, err
		}
		if !granted {
			return nil, domain.NewPermissionDenied(domain.CapabilityLocation)
		}
	}

	position := r.liveFix(ctx, timeout, observability.WithContextLogger(r.logger, ctx))
	if position == nil {
		return nil, domain.ErrLocationUnavailable
	}
	return position, nil
}

func (r *Resolver) locationAllowed(ctx context.Context, logger *zap.Logger) bool {
	if r.permissions == nil {
		return true
	}

	granted, err := r.permissions.Ensure(ctx, domain.CapabilityLocation)
	if err != nil {
		logger.Warn("location permission check failed", zap.Error(err))
		return false
	}
	if !granted {
		logger.Info("location permission denied, skipping live fix")
	}
	return granted
}

func (r *Resolver) liveFix(ctx context.Context, timeout time.Duration, logger *zap.Logger) *domain.Position {
	if r.source == nil {
		return nil
	}

	fixCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	position, err := r.source.CurrentPosition(fixCtx)
	if err != nil || position == nil {
		logger.Warn("live location fix failed",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	if position.CapturedAt.IsZero() {
		position.CapturedAt = time.Now().UTC()
	}

	if r.cache != nil {
		if err := r.cache.Store(context.WithoutCancel(ctx), r.deviceID, *position); err != nil {
			logger.Warn("failed to cache position", zap.Error(err))
		}
	}
	return position
}
