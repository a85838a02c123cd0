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
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/safeher/internal/composer"
	"github.com/kursadbilgin/safeher/internal/config"
	"github.com/kursadbilgin/safeher/internal/delivery"
	"github.com/kursadbilgin/safeher/internal/device"
	"github.com/kursadbilgin/safeher/internal/handler"
	"github.com/kursadbilgin/safeher/internal/infra/postgresql"
	"github.com/kursadbilgin/safeher/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/safeher/internal/infra/redis"
	"github.com/kursadbilgin/safeher/internal/location"
	"github.com/kursadbilgin/safeher/internal/observability"
	"github.com/kursadbilgin/safeher/internal/permission"
	"github.com/kursadbilgin/safeher/internal/provider"
	"github.com/kursadbilgin/safeher/internal/ratelimit"
	"github.com/kursadbilgin/safeher/internal/repository"
	"github.com/kursadbilgin/safeher/internal/service"
	"github.com/kursadbilgin/safeher/internal/signal"
	"github.com/kursadbilgin/safeher/internal/transport"
	"github.com/kursadbilgin/safeher/internal/trigger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	deliveryWorkers  = 4
	otpSessionTTL    = 5 * time.Minute
	authTokenTTL     = 30 * 24 * time.Hour
	geocoderDeadline = 5 * time.Second
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

	if err := run(cfg, logger); err != nil {
		logger.Error("safeher api stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	db, err := postgresql.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	sessions, err := infraredis.NewSessionStore(rdb, otpSessionTTL, authTokenTTL)
	if err != nil {
		return err
	}
	grants, err := infraredis.NewGrantStore(rdb)
	if err != nil {
		return err
	}
	// Any cached fix beats none, so positions never expire.
	positions, err := infraredis.NewPositionCache(rdb, 0)
	if err != nil {
		return err
	}
	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if cfg.SMSRateLimitPerSec > 0 {
		if limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.SMSRateLimitPerSec); err != nil {
			return err
		}
	}

	smsGateway, err := provider.NewSMSGateway(cfg.SMSGatewayURL)
	if err != nil {
		return err
	}
	geocoder, err := provider.NewGeocoder(cfg.GeocoderURL)
	if err != nil {
		return err
	}
	otpClient, err := provider.NewOTPClient(cfg.AuthServiceURL)
	if err != nil {
		return err
	}

	mqttClient, err := device.NewClient(device.ClientConfig{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
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

	rabbit, err := signal.NewRabbitMQ(cfg.RabbitMQURL, "safeher-api")
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	bus := signal.NewRabbitBus(rabbit, logger)
	defer bus.Close()

	permissions := permission.NewGateway(grants, link, cfg.DeviceID, logger)
	resolver := location.NewResolver(link, positions, permissions, geocoder, location.ResolverOptions{
		DeviceID:       cfg.DeviceID,
		GeocodeTimeout: geocoderDeadline,
		Logger:         logger,
		Metrics:        metrics,
	})

	silent := delivery.NewSilentStrategy(smsGateway, limiter, delivery.SilentOptions{
		Concurrency: deliveryWorkers,
		Logger:      logger,
		Metrics:     metrics,
	})
	composerStrategy := delivery.NewManualStrategy(link, delivery.ManualOptions{
		ComposerTimeout: cfg.ComposerTimeout,
		Logger:          logger,
	})
	channel := delivery.NewFallbackChannel(silent, composerStrategy, logger)

	contactRepo := repository.NewGormContactRepo(db)
	alertRepo := repository.NewGormAlertRepo(db)

	dispatcher, err := service.NewAlertDispatcher(
		permissions,
		contactRepo,
		resolver,
		composer.New(cfg.MapBaseURL),
		channel,
		alertRepo,
		link,
		service.DispatcherOptions{
			LocationTimeout: cfg.LocationTimeout,
			Logger:          logger,
			Metrics:         metrics,
		},
	)
	if err != nil {
		return err
	}
	contacts, err := service.NewContactService(contactRepo, logger)
	if err != nil {
		return err
	}
	auth, err := service.NewAuthService(otpClient, sessions, logger)
	if err != nil {
		return err
	}

	manual := trigger.NewManualTrigger(dispatcher, link, cfg.PromptTimeout, logger)
	listener := trigger.NewListener(bus, dispatcher, logger)

	app := fiber.New(fiber.Config{
		AppName:      "safeher-api",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app,
		handler.DatabaseProbe(sqlDB),
		handler.RedisProbe(rdb),
		handler.ConnectionProbe("device", link),
		handler.ConnectionProbe("signals", rabbit),
	)
	requireAuth, err := handler.RegisterAuthRoutes(app, auth)
	if err != nil {
		return err
	}
	if err := handler.RegisterContactRoutes(app, contacts, requireAuth); err != nil {
		return err
	}
	if err := handler.RegisterAlertRoutes(app, manual, alertRepo, requireAuth); err != nil {
		return err
	}
	if err := handler.RegisterPermissionRoutes(app, permissions, requireAuth); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("safeher api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down safeher api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}
