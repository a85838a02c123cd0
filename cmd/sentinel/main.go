package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/safeher/internal/config"
	"github.com/kursadbilgin/safeher/internal/device"
	"github.com/kursadbilgin/safeher/internal/handler"
	infraredis "github.com/kursadbilgin/safeher/internal/infra/redis"
	"github.com/kursadbilgin/safeher/internal/location"
	"github.com/kursadbilgin/safeher/internal/observability"
	"github.com/kursadbilgin/safeher/internal/permission"
	"github.com/kursadbilgin/safeher/internal/service"
	"github.com/kursadbilgin/safeher/internal/signal"
	"github.com/kursadbilgin/safeher/internal/transport"
	"github.com/kursadbilgin/safeher/internal/trigger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	warmInterval    = 5 * time.Minute
	clientIDSuffix  = "-sentinel"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLoggerWithFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger.Named("sentinel")); err != nil {
		logger.Error("safeher sentinel stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	grants, err := infraredis.NewGrantStore(rdb)
	if err != nil {
		return err
	}
	// Any cached fix beats none, so positions never expire.
	positions, err := infraredis.NewPositionCache(rdb, 0)
	if err != nil {
		return err
	}

	// The api process holds its own MQTT session; broker client ids must differ.
	mqttClient, err := device.NewClient(device.ClientConfig{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID + clientIDSuffix,
	}, logger)
	if err != nil {
		return fmt.Errorf("device link initialization failed: %w", err)
	}
	defer mqttClient.Disconnect()

	link, err := device.NewLink(mqttClient, cfg.DeviceID, logger)
	if err != nil {
		return err
	}
	if err := link.Start(); err != nil {
		return fmt.Errorf("device link start failed: %w", err)
	}
	defer link.Close()

	rabbit, err := signal.NewRabbitMQ(cfg.RabbitMQURL, "safeher-sentinel")
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	bus := signal.NewRabbitBus(rabbit, logger)
	defer bus.Close()

	detector := trigger.NewShakeDetector(trigger.DetectorConfig{
		Threshold:     cfg.ShakeThreshold,
		Debounce:      cfg.ShakeDebounce,
		RequiredCount: cfg.ShakeRequiredCount,
		Window:        cfg.ShakeWindow,
	})
	coordinator := trigger.NewCoordinator(bus, link, link, trigger.CoordinatorConfig{
		MaxAttempts:   cfg.TriggerMaxAttempts,
		RetryInterval: cfg.TriggerRetryInterval,
		PromptTimeout: cfg.PromptTimeout,
		Logger:        logger,
		Metrics:       metrics,
	})

	permissions := permission.NewGateway(grants, link, cfg.DeviceID, logger)
	resolver := location.NewResolver(link, positions, permissions, nil, location.ResolverOptions{
		DeviceID: cfg.DeviceID,
		Logger:   logger,
		Metrics:  metrics,
	})
	warmer, err := service.NewLocationWarmer(resolver, warmInterval, cfg.LocationTimeout, logger)
	if err != nil {
		return err
	}

	sentinel, err := service.NewSentinel(link, detector, coordinator, warmer, logger)
	if err != nil {
		return err
	}

	app := newOpsApp(logger, metrics,
		handler.RedisProbe(rdb),
		handler.ConnectionProbe("device", link),
		handler.ConnectionProbe("signals", rabbit),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("safeher sentinel started",
			zap.String("deviceId", cfg.DeviceID),
			zap.Int("port", cfg.SentinelPort),
		)
		return sentinel.Start(gctx)
	})
	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.SentinelPort)); err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

// newOpsApp serves metrics and health only; the alert API lives in the api process.
func newOpsApp(logger *zap.Logger, metrics *observability.Metrics, probes ...handler.Probe) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "safeher-sentinel",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, probes...)
	return app
}
