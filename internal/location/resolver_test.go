package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
)

type fakeSource struct {
	currentPositionFn func(ctx context.Context) (*domain.Position, error)
	calls             int
}

func (f *fakeSource) CurrentPosition(ctx context.Context) (*domain.Position, error) {
	f.calls++
	if f.currentPositionFn != nil {
		return f.currentPositionFn(ctx)
	}
	return nil, errors.New("no fix")
}

type fakeCache struct {
	mu     sync.Mutex
	stored map[string]domain.Position
}

func newFakeCache() *fakeCache {
	return &fakeCache{stored: make(map[string]domain.Position)}
}

func (f *fakeCache) Store(_ context.Context, deviceID string, p domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[deviceID] = p
	return nil
}

func (f *fakeCache) LastKnown(_ context.Context, deviceID string) (*domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.stored[deviceID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakePermissions struct {
	granted bool
}

func (f fakePermissions) Ensure(context.Context, domain.Capability) (bool, error) {
	return f.granted, nil
}

// silentPrompter never answers the permission dialog.
type silentPrompter struct{}

func (silentPrompter) Ensure(ctx context.Context, _ domain.Capability) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

type fakeGeocoder struct {
	address string
	err     error
}

func (f fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return f.address, f.err
}

func blockUntilDone(ctx context.Context) (*domain.Position, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveLiveFixIsCached(t *testing.T) {
	t.Parallel()

	source := &fakeSource{currentPositionFn: func(context.Context) (*domain.Position, error) {
		return &domain.Position{Latitude: 12.9716, Longitude: 77.5946}, nil
	}}
	cache := newFakeCache()
	resolver := NewResolver(source, cache, fakePermissions{granted: true}, nil, ResolverOptions{DeviceID: "phone-1"})

	position, err := resolver.Resolve(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if position.Latitude != 12.9716 {
		t.Fatalf("position = %+v", position)
	}
	if position.CapturedAt.IsZero() {
		t.Fatal("CapturedAt should be stamped")
	}

	cached, _ := cache.LastKnown(context.Background(), "phone-1")
	if cached == nil || cached.Longitude != 77.5946 {
		t.Fatalf("cached = %+v", cached)
	}
}

func TestResolveTimeoutFallsBackToCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	stale := domain.Position{Latitude: 1, Longitude: 2, CapturedAt: time.Now().Add(-72 * time.Hour)}
	_ = cache.Store(context.Background(), "phone-1", stale)

	source := &fakeSource{currentPositionFn: blockUntilDone}
	resolver := NewResolver(source, cache, fakePermissions{granted: true}, nil, ResolverOptions{DeviceID: "phone-1"})

	start := time.Now()
	position, err := resolver.Resolve(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if position.Latitude != 1 || position.Longitude != 2 {
		t.Fatalf("position = %+v, want cached", position)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Resolve() took %v, timeout not honoured", elapsed)
	}
}

func TestResolveTimeoutWithoutCache(t *testing.T) {
	t.Parallel()

	source := &fakeSource{currentPositionFn: blockUntilDone}
	resolver := NewResolver(source, newFakeCache(), fakePermissions{granted: true}, nil, ResolverOptions{})

	_, err := resolver.Resolve(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, domain.ErrLocationUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrLocationUnavailable", err)
	}
}

func TestResolvePermissionDeniedSkipsFix(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	cache := newFakeCache()
	resolver := NewResolver(source, cache, fakePermissions{granted: false}, nil, ResolverOptions{})

	_, err := resolver.Resolve(context.Background(), time.Second)
	if !errors.Is(err, domain.ErrLocationUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrLocationUnavailable", err)
	}
	if source.calls != 0 {
		t.Fatalf("source calls = %d, want 0", source.calls)
	}

	_ = cache.Store(context.Background(), "", domain.Position{Latitude: 3, Longitude: 4})
	position, err := resolver.Resolve(context.Background(), time.Second)
	if err != nil || position.Latitude != 3 {
		t.Fatalf("Resolve() = %+v, %v; want cached", position, err)
	}
}

func TestResolveUnansweredPermissionPromptFallsBackToCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	_ = cache.Store(context.Background(), "phone-1", domain.Position{Latitude: 12.9716, Longitude: 77.5946})
	source := &fakeSource{}
	resolver := NewResolver(source, cache, silentPrompter{}, nil, ResolverOptions{DeviceID: "phone-1"})

	done := make(chan struct{})
	var (
		position *domain.Position
		err      error
	)
	go func() {
		defer close(done)
		position, err = resolver.Resolve(context.Background(), 100*time.Millisecond)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Resolve() still blocked on the permission prompt")
	}
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if position.Latitude != 12.9716 || position.Longitude != 77.5946 {
		t.Fatalf("position = %+v, want cached", position)
	}
	if source.calls != 0 {
		t.Fatalf("source calls = %d, want 0 without a grant", source.calls)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	p := domain.Position{Latitude: 12.9716, Longitude: 77.5946}

	tests := []struct {
		name     string
		geocoder ReverseGeocoder
		want     string
	}{
		{name: "address", geocoder: fakeGeocoder{address: "MG Road"}, want: "MG Road"},
		{name: "lookup failure", geocoder: fakeGeocoder{err: errors.New("503")}, want: "12.971600, 77.594600"},
		{name: "no geocoder", want: "12.971600, 77.594600"},
	}

	for _, tt := range tests {
		resolver := NewResolver(nil, nil, nil, tt.geocoder, ResolverOptions{})
		if got := resolver.Describe(context.Background(), p); got != tt.want {
			t.Fatalf("%s: Describe() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

type fakeGrantPermissions struct {
	fakePermissions
	isGranted bool
	ensured   int
}

func (f *fakeGrantPermissions) Ensure(ctx context.Context, capability domain.Capability) (bool, error) {
	f.ensured++
	return f.fakePermissions.Ensure(ctx, capability)
}

func (f *fakeGrantPermissions) IsGranted(context.Context, domain.Capability) (bool, error) {
	return f.isGranted, nil
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	fix := func(context.Context) (*domain.Position, error) {
		return &domain.Position{Latitude: 1, Longitude: 2}, nil
	}

	t.Run("granted caches fix", func(t *testing.T) {
		t.Parallel()

		cache := newFakeCache()
		permissions := &fakeGrantPermissions{isGranted: true}
		resolver := NewResolver(&fakeSource{currentPositionFn: fix}, cache, permissions, nil, ResolverOptions{DeviceID: "phone-1"})

		if _, err := resolver.Refresh(context.Background(), time.Second); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if cached, _ := cache.LastKnown(context.Background(), "phone-1"); cached == nil {
			t.Fatal("fix should be cached")
		}
		if permissions.ensured != 0 {
			t.Fatal("Refresh() must not prompt for permission")
		}
	})

	t.Run("denied skips fix", func(t *testing.T) {
		t.Parallel()

		source := &fakeSource{currentPositionFn: fix}
		resolver := NewResolver(source, newFakeCache(), &fakeGrantPermissions{}, nil, ResolverOptions{})

		_, err := resolver.Refresh(context.Background(), time.Second)
		if capability, ok := domain.IsPermissionDenied(err); !ok || capability != domain.CapabilityLocation {
			t.Fatalf("Refresh() error = %v, want location permission denied", err)
		}
		if source.calls != 0 {
			t.Fatalf("source calls = %d, want 0", source.calls)
		}
	})

	t.Run("no fix", func(t *testing.T) {
		t.Parallel()

		resolver := NewResolver(&fakeSource{}, newFakeCache(), nil, nil, ResolverOptions{})
		if _, err := resolver.Refresh(context.Background(), time.Second); !errors.Is(err, domain.ErrLocationUnavailable) {
			t.Fatalf("Refresh() error = %v, want ErrLocationUnavailable", err)
		}
	})
}
