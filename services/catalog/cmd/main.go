package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/marketplace/pkg/config"
	"github.com/sakashimaa/marketplace/pkg/db"
	"github.com/sakashimaa/marketplace/pkg/kafka"
	outbox "github.com/sakashimaa/marketplace/pkg/outbox/repository"
	outboxWorker "github.com/sakashimaa/marketplace/pkg/outbox/worker"
	"github.com/sakashimaa/marketplace/pkg/utils"
	"github.com/sakashimaa/marketplace/services/catalog/internal/imagestore"
	"github.com/sakashimaa/marketplace/services/catalog/internal/menu"
	"github.com/sakashimaa/marketplace/services/catalog/internal/repository"
	"github.com/sakashimaa/marketplace/services/catalog/internal/service"
	"github.com/sakashimaa/marketplace/services/catalog/internal/staging"
	"github.com/sakashimaa/marketplace/services/catalog/internal/transport/http"
	"github.com/sakashimaa/marketplace/services/catalog/internal/transport/http/handler"
	catalogKafka "github.com/sakashimaa/marketplace/services/catalog/internal/transport/kafka"
	"github.com/sakashimaa/marketplace/services/catalog/internal/worker"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:   cfg.Logger.Level,
		Env:     cfg.Env,
		Service: "catalog-service",
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, "catalog-service", cfg.Env)
	if err != nil {
		logger.Fatal("Error init tracer", zap.Error(err))
	}

	if err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, logger); err != nil {
		logger.Fatal("Error applying migrations", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL, logger)
	if err != nil {
		logger.Fatal("Error creating postgres pool", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Error connecting to redis", zap.Error(err))
	}

	images, err := imagestore.NewMinioStore(ctx, cfg.MinIO, logger)
	if err != nil {
		logger.Fatal("Error creating image store", zap.Error(err))
	}

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Error creating kafka producer", zap.Error(err))
	}

	outboxRepository := outbox.NewOutboxRepository(pool, logger)
	productRepository := repository.NewProductRepository(pool, outboxRepository, logger)
	grouping := menu.NewGrouping(
		repository.NewMenuRepository(pool, logger),
		cfg.Moderation.MenuCacheSize,
		cfg.Moderation.MenuCacheTTL,
	)
	stagingCache := staging.New(rdb)

	catalogService := service.NewCatalogService(
		productRepository,
		stagingCache,
		images,
		grouping,
		cfg.Moderation.MaxDecideRetries,
		logger,
	)
	cachedCatalogService := service.NewCachedCatalogService(catalogService, rdb, cfg.Redis.CacheTTL, logger)

	outboxProcessor := outboxWorker.NewOutboxProcessor(
		pool,
		outboxRepository,
		kafkaProducer,
		logger,
		outboxWorker.WithBatchSize(cfg.Outbox.BatchSize),
		outboxWorker.WithInterval(cfg.Outbox.Interval),
		outboxWorker.WithMaxAttempts(cfg.Outbox.MaxAttempts),
	)
	reconciler := worker.NewReconciler(
		productRepository,
		stagingCache,
		cfg.Moderation.ReconcileInterval,
		cfg.Moderation.AbandonedAfter,
		logger,
	)
	consumer := catalogKafka.NewConsumer(cachedCatalogService, pool, logger)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		outboxProcessor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		reconciler.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.MerchantTopic); err != nil {
			logger.Error("Merchant consumer stopped", zap.Error(err))
		}
	}()

	app := fiber.New()

	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	handlers := &http.Handlers{
		Product: handler.NewProductHandler(cachedCatalogService, cfg.HTTP.Timeout, logger),
	}

	http.RegisterRoutes(app, handlers, http.AuthConfig{
		AccessSecret: cfg.Auth.AccessSecret,
		AdminRole:    cfg.Auth.AdminRole,
	})

	go func() {
		logger.Info("HTTP catalog service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			logger.Fatal("Error listening HTTP", zap.String("port", cfg.HTTP.Port), zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	} else {
		logger.Info("Stopped HTTP server successfully")
	}

	wg.Wait()

	if err := kafkaProducer.Close(); err != nil {
		logger.Error("Error closing kafka producer", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Error("Error closing redis client", zap.Error(err))
	}

	pool.Close()
	logger.Info("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping telemetry", zap.Error(err))
	} else {
		logger.Info("Telemetry closed correctly")
	}
}
