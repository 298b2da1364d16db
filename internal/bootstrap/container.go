package bootstrap

import (
	"context"
	"fmt"

	"chat-state-be/internal/config"
	"chat-state-be/internal/controller"
	"chat-state-be/internal/pkg/logger"
	"chat-state-be/internal/repository/implementation"
	"chat-state-be/internal/repository/memory"
	"chat-state-be/internal/service"
	"chat-state-be/pkg/events"
	pkgNats "chat-state-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	SessionController controller.ISessionController

	// Services (exposed for cmd tools)
	SessionStateService service.SessionStateService
	HealthMonitor       *service.HealthMonitor

	Logger logger.ILogger

	redis     *redis.Client
	bus       *events.Bus
	publisher *pkgNats.Publisher
}

// NewContainer validates the configuration and wires the state store. A malformed
// configuration is fatal; an unreachable Redis is not, the container then starts in
// fallback mode.
func NewContainer(cfg *config.Config) (*Container, error) {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	return NewContainerWithLogger(cfg, sysLogger)
}

func NewContainerWithLogger(cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 1. Remote backend
	rdb, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	remoteRepo := implementation.NewRedisStateRepository(rdb, cfg.Store.KeyPrefix, cfg.Store.ConnectionTimeout())

	// 2. Local fallback
	localRepo := memory.NewStateRepository()

	// 3. Event bus (relayed to NATS when configured)
	bus := events.NewBus(watermill.NewStdLogger(false, false))
	var publisher *pkgNats.Publisher
	var relay service.EventPublisher
	if cfg.Events.NatsURL != "" {
		publisher, err = pkgNats.NewPublisher(cfg.Events.NatsURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "NATS unavailable, state events stay in-process", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			relay = publisher
		}
	}
	consumer := service.NewConsumerService(bus, relay, sysLogger)
	if err := consumer.Consume(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start state event consumer: %w", err)
	}

	// 4. Health monitor (construction-time probe decides the initial backend)
	healthMonitor := service.NewHealthMonitor(context.Background(), remoteRepo, cfg.Store.ConnectionTimeout(), sysLogger)
	healthMonitor.SetEventPublisher(bus)
	if !healthMonitor.IsRemoteAvailable() {
		sysLogger.Warn("Bootstrap", "Redis unreachable at startup, serving from local fallback", map[string]interface{}{
			"error": healthMonitor.Status().LastError,
		})
	}

	// 5. Services
	stateService := service.NewSessionStateService(remoteRepo, localRepo, healthMonitor, bus, sysLogger, service.SessionStateConfig{
		SessionTTL:      cfg.Store.SessionTTL(),
		ConversationTTL: cfg.Store.ConversationTTL(),
	})

	// 6. Controllers
	sessionController := controller.NewSessionController(stateService)

	return &Container{
		SessionController:   sessionController,
		SessionStateService: stateService,
		HealthMonitor:       healthMonitor,
		Logger:              sysLogger,
		redis:               rdb,
		bus:                 bus,
		publisher:           publisher,
	}, nil
}

func (c *Container) Close() error {
	_ = c.bus.Close()
	if c.publisher != nil {
		c.publisher.Close()
	}
	_ = c.Logger.Sync()
	return c.redis.Close()
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	var opt *redis.Options
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: REDIS_URL: %v", config.ErrMalformedConfig, err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     cfg.Redis.Addr(),
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		}
	}

	timeout := cfg.Store.ConnectionTimeout()
	opt.DialTimeout = timeout
	opt.ReadTimeout = timeout
	opt.WriteTimeout = timeout
	opt.ContextTimeoutEnabled = true
	// Failover replaces retries: a failed call is replayed on the local store.
	opt.MaxRetries = -1

	return redis.NewClient(opt), nil
}
