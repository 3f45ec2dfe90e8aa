package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"price_crew/api"
	"price_crew/config"
	"price_crew/identity"
	"price_crew/logging"
	"price_crew/models"
	"price_crew/notify"
	"price_crew/registry"
	"price_crew/scheduler"
	"price_crew/scraper"
	"price_crew/services"
	"price_crew/storage"
	"price_crew/workers"
)

var (
	productFlag = flag.String("product", "", "Run one dispatch for this product id and exit")
	regionsFlag = flag.String("regions", "", "Comma-separated region codes for -product (default: all)")
	healthNow   = flag.Bool("health", false, "Run the region health check once and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, cfg.LogMaxBytes)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting price_crew...")

	reg, err := registry.New(cfg.Regions)
	if err != nil {
		log.Fatalf("Invalid region config: %v", err)
	}
	log.Printf("Loaded %d regions", len(reg.Codes()))
	for _, region := range reg.Regions() {
		log.Printf("  - %s (%s, %s)", region.Name, region.Code, region.Currency)
	}

	ids, err := identity.NewValidator(cfg.ProductIDPattern)
	if err != nil {
		log.Fatalf("Invalid PRODUCT_ID_PATTERN: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SQLite holds operational data: runs, logs, commands, health, watchlist
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	var priceStore interface {
		services.PriceStore
		EnsureSchema(ctx context.Context, codes []string) error
	} = sqliteStore
	if cfg.DatabaseURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))
		priceStore = pgStore
	}
	if err := priceStore.EnsureSchema(ctx, reg.Codes()); err != nil {
		log.Fatalf("Failed to prepare price schema: %v", err)
	}

	reports := services.NewReportService(priceStore, storage.IsRetryable)
	archive, cache, publisher := setupSinks(ctx, cfg)
	reports.SetSinks(archive, cache, publisher)
	reports.SetAlerts(cfg.PriceAlertPercent, sqliteStore)

	invoker := scraper.NewProcessInvoker(int64(cfg.Dispatch.MaxOutputBytes))
	orchestrator := scraper.NewOrchestrator(reg, ids, invoker, scraper.Options{
		WorkerTimeout: cfg.Dispatch.WorkerTimeout,
		SettleDelay:   cfg.Dispatch.SettleDelay,
	})
	orchestrator.SetServices(reports, sqliteStore)

	healthService := services.NewHealthcheckService(orchestrator, reg.Codes(), cfg.Healthcheck.ProductID, cfg.Healthcheck.Timeout)
	healthcheckWorker := workers.NewHealthcheckWorker(healthService, sqliteStore)
	healthcheckWorker.SetLogger(workers.StoreLogger(sqliteStore))

	// Handle one-shot commands
	if *productFlag != "" {
		report, err := orchestrator.Run(ctx, *productFlag, splitCodes(*regionsFlag))
		if report != nil {
			printJSON(report)
		}
		if err != nil {
			var pe *models.PersistenceError
			if errors.As(err, &pe) {
				log.Printf("Dispatch completed but was not stored: %v", err)
				os.Exit(1)
			}
			log.Fatalf("Dispatch failed: %v", err)
		}
		return
	}
	if *healthNow {
		results, err := healthcheckWorker.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		printJSON(results)
		return
	}

	// Daemon mode
	refreshWorker := workers.NewRefreshWorker(orchestrator, sqliteStore, cfg.Refresh.Watchlist, cfg.Refresh.RatePerMin)
	refreshWorker.SetLogger(workers.StoreLogger(sqliteStore))

	sched := scheduler.New(cfg, orchestrator, sqliteStore)
	sched.SetWorkers(healthcheckWorker, refreshWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Services{
			Runner:    orchestrator,
			Reports:   reports,
			Registry:  reg,
			Health:    healthcheckWorker,
			HealthLog: sqliteStore,
			Watchlist: sqliteStore,
			Commands:  sqliteStore,
			Validate:  ids.Validate,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		healthcheckWorker.Run(gctx, cfg.Healthcheck.Interval)
		return nil
	})
	g.Go(func() error {
		refreshWorker.Run(gctx, cfg.Refresh.Interval)
		return nil
	})
	g.Go(func() error {
		log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Println("Daemon running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		log.Printf("Daemon error: %v", err)
	}

	sched.Stop()
	log.Println("Goodbye!")
}

// setupSinks builds the optional report destinations from config. Each one is
// skipped when its settings are absent or it fails to initialise.
func setupSinks(ctx context.Context, cfg *config.Config) (services.Archiver, services.ReportCache, services.Publisher) {
	var archive services.Archiver
	if cfg.S3.Bucket != "" {
		s3Archive, err := storage.NewS3Archive(ctx, cfg.S3)
		if err != nil {
			log.Printf("Warning: S3 archive disabled: %v", err)
		} else {
			archive = s3Archive
			log.Printf("Archiving reports to s3://%s", cfg.S3.Bucket)
		}
	}

	var cache services.ReportCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = storage.NewRedisReportCache(client, cfg.Redis.TTL)
		log.Printf("Caching reports in Redis at %s", cfg.Redis.Addr)
	}

	var publisher services.Publisher = &notify.NoopPublisher{}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			log.Printf("Warning: Pub/Sub publishing disabled: %v", err)
		} else {
			publisher = notify.NewPubSubPublisher(client.Topic(cfg.PubSub.Topic))
			log.Printf("Publishing report summaries to %s/%s", cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		}
	}

	return archive, cache, publisher
}

func splitCodes(s string) []string {
	var codes []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode output: %v", err)
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	// Simple mask - find :// and mask until @
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	// Find : after user
	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
