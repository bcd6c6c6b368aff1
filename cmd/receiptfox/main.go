package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ReceiptFox/app/controllers"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/database"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/env"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/export"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/extraction"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/mail"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/objectstore"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/pipeline"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/router"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/usage"
)

func main() {
	env.SetupEnvFile()

	app, manager, err := NewApplication(context.Background())
	if err != nil {
		log.Fatalf("[App] Startup failed: %v", err)
	}
	manager.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[App] Listen failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("[App] Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[App] HTTP shutdown: %v", err)
	}
	manager.Stop()
}

// NewApplication builds every client once and hands them to the components that need them
func NewApplication(ctx context.Context) (*fiber.App, *jobqueue.Manager, error) {
	db, err := database.Connect(database.LoadConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	repos := repository.NewFactory(db).GetRepositories()

	cacheCfg := cache.LoadConfig()
	redisClient := cache.NewClient(cacheCfg)
	resultCache := cache.NewResultCache(redisClient, env.GetDuration("OCR_CACHE_TTL", cache.DefaultResultTTL))

	queue := jobqueue.NewQueue(redisClient, jobqueue.Config{
		Workers:      env.GetInt("JOBQUEUE_WORKERS", 3),
		RetryBackoff: env.GetDuration("JOBQUEUE_RETRY_BACKOFF", 30*time.Second),
	})

	storeCfg, err := objectstore.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("object store: %w", err)
	}
	var objects *objectstore.Client
	var fetcher extraction.ObjectFetcher
	if storeCfg.IsEnabled() {
		objects, err = objectstore.NewClient(ctx, storeCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("object store: %w", err)
		}
		fetcher = objects
	}

	extractCfg := extraction.LoadConfig()
	extractor, err := extraction.NewClient(extractCfg, extraction.NewLoader(fetcher, extractCfg.Timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("extraction: %w", err)
	}

	tracker := usage.NewTracker(repos.User)
	notifier := mail.NewBatchNotifier(mail.NewMailer(mail.LoadConfig()), repos.User)
	aggregator := pipeline.NewAggregator(repos.BatchSession, notifier)
	dispatcher := pipeline.NewDispatcher(repos.BatchSession, repos.Receipt, queue, resultCache, tracker)

	pipeline.Register(queue,
		pipeline.NewBatchWorker(extractor, aggregator),
		pipeline.NewReceiptWorker(extractor, repos.Receipt, resultCache),
	)
	manager := jobqueue.NewManager(queue,
		pipeline.StallReportTask(repos.BatchSession,
			env.GetDuration("STALL_REPORT_AFTER", 30*time.Minute),
			env.GetDuration("STALL_REPORT_INTERVAL", 5*time.Minute)),
	)

	billingCfg := billing.LoadConfig()
	payments := billing.NewService(billingCfg, billing.NewHTTPProvider(billingCfg), repos.BatchSession, billing.NewEventStore(db))

	deps := controllers.Deps{
		Submitter:  dispatcher,
		Sessions:   repos.BatchSession,
		Receipts:   repos.Receipt,
		Exporter:   export.NewService(repos.BatchSession, repos.Receipt, tracker),
		Payments:   payments,
		Tasks:      queue,
		Queue:      queue,
		TaskSecret: env.GetEnv("TASK_SIGNING_SECRET", ""),
	}
	if objects != nil {
		deps.Uploads = objects
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if pass := env.GetEnv("METRICS_PASSWORD", ""); pass != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{env.GetEnv("METRICS_USER", "admin"): pass},
		}), monitor.New())
	}

	router.InstallRouter(app, router.NewApiRouter(controllers.NewAPI(deps), repos.User, router.NewLimiterStorage(cacheCfg)))
	return app, manager, nil
}
