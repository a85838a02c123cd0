package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/safeher/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultMotionBuffer = 64

type MotionSource interface {
	SubscribeMotion(handler func(domain.MotionSample)) error
}

type ShakeObserver interface {
	Observe(s domain.MotionSample) bool
}

// EpisodeRunner is the background side of the trigger handshake.
type EpisodeRunner interface {
	Run(ctx context.Context) error
	Fire() string
}

// Sentinel is the background process: it turns motion samples into trigger
// episodes and keeps the acknowledgement listener running.
type Sentinel struct {
	motion      MotionSource
	detector    ShakeObserver
	coordinator EpisodeRunner
	warmer      *LocationWarmer
	logger      *zap.Logger
	samples     chan domain.MotionSample
}

func NewSentinel(
	motion MotionSource,
	detector ShakeObserver,
	coordinator EpisodeRunner,
	warmer *LocationWarmer,
	logger *zap.Logger,
) (*Sentinel, error) {
	if motion == nil {
		return nil, fmt.Errorf("motion source is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("shake detector is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("trigger coordinator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sentinel{
		motion:      motion,
		detector:    detector,
		coordinator: coordinator,
		warmer:      warmer,
		logger:      logger,
		samples:     make(chan domain.MotionSample, defaultMotionBuffer),
	}, nil
}

// Start runs until ctx is cancelled or a component fails.
func (s *Sentinel) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.motion.SubscribeMotion(s.enqueue); err != nil {
		return fmt.Errorf("failed to subscribe to motion: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.coordinator.Run(groupCtx)
	})
	g.Go(func() error {
		s.detect(groupCtx)
		return nil
	})
	if s.warmer != nil {
		g.Go(func() error {
			return s.warmer.Start(groupCtx)
		})
	}

	s.logger.Info("sentinel started")
	err := g.Wait()
	s.logger.Info("sentinel stopped")
	return err
}

// enqueue runs on the transport's callback goroutine and never blocks it.
func (s *Sentinel) enqueue(sample domain.MotionSample) {
	select {
	case s.samples <- sample:
	default:
		s.logger.Debug("motion sample dropped, detector busy")
	}
}

func (s *Sentinel) detect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-s.samples:
			if !s.detector.Observe(sample) {
				continue
			}
			episodeID := s.coordinator.Fire()
			s.logger.Info("shake detected, trigger fired", zap.String("episodeId", episodeID))
		}
	}
}
