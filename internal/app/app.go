package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/rabbitmq"
)

// Deps are externally owned resources. Nil fields are built from the config.
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Events services.EventPublisher
}

// App is the assembled storefront: services, HTTP routes and background work.
type App struct {
	Fiber *fiber.App

	Products *services.ProductService
	Carts    *services.CartService
	Checkout *services.CheckoutService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Auth     *services.AuthService

	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	redis *redis.Client
	mq    *rabbitmq.Client

	ownsDB    bool
	ownsRedis bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the application from cfg, connecting to every configured
// backend.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	return NewWithDeps(cfg, log, Deps{})
}

// NewWithDeps builds the application around the given resources. A missing
// Redis or RabbitMQ degrades to no cart cache or no events.
func NewWithDeps(cfg *config.Config, log *zap.Logger, deps Deps) (*App, error) {
	log = logger.OrNop(log)
	a := &App{cfg: cfg, log: log, db: deps.DB, redis: deps.Redis}

	if a.db == nil {
		db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		a.db, a.ownsDB = db, true
	}

	cartCache := a.cartCache()
	events := deps.Events
	if events == nil {
		events = a.events()
	}

	store := repositories.NewStore(a.db)
	calc := pricing.NewCalculator(pricing.Options{
		TaxRate:           cfg.TaxRate,
		ShippingThreshold: cfg.ShippingThreshold,
		FlatShippingFee:   cfg.ShippingFlatFee,
	})
	gateways := map[models.PaymentMethod]services.PaymentGateway{
		models.PaymentMethodStub: services.StubGateway{},
	}

	a.Products = services.NewProductService(store, log)
	a.Carts = services.NewCartService(store, cartCache, calc, services.CartConfig{
		Currency:   cfg.Currency,
		SessionTTL: cfg.CartSessionTTL,
	}, log)
	a.Checkout = services.NewCheckoutService(store, cartCache, calc, events, services.CheckoutConfig{
		Currency:            cfg.Currency,
		OrderNumberAttempts: cfg.OrderNumberAttempts,
	}, log)
	a.Orders = services.NewOrderService(store, events, log)
	a.Payments = services.NewPaymentService(store, gateways, events, log)
	a.Auth = services.NewAuthService(store, cfg.JWTSecret, log)

	a.Fiber = a.routes()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.startSweeper(ctx)
	a.startConsumer(ctx)
	return a, nil
}

func (a *App) cartCache() cache.CartCache {
	if a.redis == nil && a.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			a.log.Warn("redis unavailable, cart cache disabled", zap.String("addr", a.cfg.RedisAddr), zap.Error(err))
			client.Close()
			return cache.NopCartCache{}
		}
		a.redis, a.ownsRedis = client, true
	}
	if a.redis == nil {
		return cache.NopCartCache{}
	}
	return cache.NewRedisCartCache(a.redis, a.cfg.CartCacheTTL)
}

func (a *App) events() services.EventPublisher {
	if a.cfg.RabbitMQURL == "" {
		return services.NopPublisher{}
	}
	client, err := rabbitmq.NewClient(rabbitmq.Config{URL: a.cfg.RabbitMQURL}, a.log.Named("rabbitmq"))
	if err != nil {
		a.log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
		return services.NopPublisher{}
	}
	a.mq = client
	return client
}

func (a *App) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "storefront",
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler(a.log),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(a.log.Named("http")))

	app.Get("/health", a.health)

	protect := middleware.AuthRequired(a.Auth, a.log)
	owner := []fiber.Handler{middleware.OptionalAuth(a.Auth, a.log), middleware.CartOwner()}

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(a.Auth, a.log).RegisterRoutes(apiV1)
	handlers.NewProductHandler(a.Products, a.log).RegisterRoutes(apiV1, protect)
	handlers.NewCartHandler(a.Carts, a.log).RegisterRoutes(apiV1, protect, owner...)
	handlers.NewCheckoutHandler(a.Checkout, a.log).RegisterRoutes(apiV1, protect, owner...)
	handlers.NewOrderHandler(a.Orders, a.Payments, a.log).RegisterRoutes(apiV1, protect)
	handlers.NewAdminHandler(a.Orders, a.log).RegisterRoutes(apiV1, middleware.APIKeyRequired(a.cfg.AdminAPIKey, a.log))
	handlers.NewPaymentHandler(a.Payments, a.log).RegisterRoutes(apiV1, middleware.APIKeyRequired(a.cfg.GatewayAPIKey, a.log))
	return app
}

func (a *App) health(c *fiber.Ctx) error {
	status := fiber.StatusOK
	body := fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"database": "connected",
		"redis":    "disabled",
		"rabbitmq": "disabled",
	}

	if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		status = fiber.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
	}
	if a.redis != nil {
		body["redis"] = "connected"
		if err := a.redis.Ping(c.UserContext()).Err(); err != nil {
			body["redis"] = "unreachable"
		}
	}
	if a.mq != nil {
		body["rabbitmq"] = "connected"
	}
	return c.Status(status).JSON(body)
}

// startSweeper periodically expires guest carts past their TTL.
func (a *App) startSweeper(ctx context.Context) {
	interval := a.cfg.CartSweepInterval
	if interval <= 0 {
		return
	}
	log := a.log.Named("sweeper")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := a.Carts.ExpireSessionCarts(ctx, now)
				if err != nil {
					log.Warn("cart sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					log.Info("expired guest carts", zap.Int64("count", n))
				}
			}
		}
	}()
}

func (a *App) startConsumer(ctx context.Context) {
	if a.mq == nil {
		return
	}
	if err := a.mq.Consume(ctx, rabbitmq.LogHandler(a.log.Named("events"))); err != nil {
		a.log.Warn("failed to start event consumer", zap.Error(err))
	}
}

// Listen serves HTTP on the configured port until Shutdown.
func (a *App) Listen() error {
	a.log.Info("starting server", zap.String("addr", a.cfg.AppPort))
	return a.Fiber.Listen(a.cfg.AppPort)
}

// Shutdown stops HTTP, background work and the connections the app opened.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	a.cancel()
	a.wg.Wait()

	if a.mq != nil {
		if err := a.mq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.ownsRedis {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.ownsDB {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("database close: %w", err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %v", errs)
	}
	return nil
}
