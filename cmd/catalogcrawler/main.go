// Command catalogcrawler discovers and extracts product records from the
// catalog. It either performs one parse run and exports the results
// (default), or serves the admin API and processes queued tasks.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/api"
	"github.com/gastronom/catalog-crawler/internal/catalog"
	"github.com/gastronom/catalog-crawler/internal/classify"
	"github.com/gastronom/catalog-crawler/internal/clock/system"
	"github.com/gastronom/catalog-crawler/internal/config"
	"github.com/gastronom/catalog-crawler/internal/discover"
	"github.com/gastronom/catalog-crawler/internal/export"
	"github.com/gastronom/catalog-crawler/internal/extract"
	"github.com/gastronom/catalog-crawler/internal/fetch"
	"github.com/gastronom/catalog-crawler/internal/id/uuid"
	"github.com/gastronom/catalog-crawler/internal/location"
	"github.com/gastronom/catalog-crawler/internal/logging"
	"github.com/gastronom/catalog-crawler/internal/metrics"
	"github.com/gastronom/catalog-crawler/internal/pipeline"
	"github.com/gastronom/catalog-crawler/internal/queue/memory"
	"github.com/gastronom/catalog-crawler/internal/storage/postgres"
	"github.com/gastronom/catalog-crawler/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		serve      = flag.Bool("serve", false, "serve the admin API instead of running once")
		address    = flag.String("address", "", "delivery address or lat,lon override")
		target     = flag.Int("target", 0, "target product count override")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Pipeline.Address = *address
	}
	if *target > 0 {
		cfg.Pipeline.TargetCount = *target
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *serve); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, serve bool) error {
	client := fetch.New(fetch.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.RequestTimeout(),
		MaxInFlight: cfg.Crawler.MaxInFlight,
	}, logger.Named("fetch"))
	defer client.Close()

	detailPattern, err := regexp.Compile(cfg.Crawler.DetailURLPattern)
	if err != nil {
		return fmt.Errorf("compile detail url pattern: %w", err)
	}

	binder := location.New(location.Config{
		GeocodeURL: cfg.Location.GeocodeURL,
		BindURL:    cfg.Location.BindURL,
		DefaultLat: cfg.Location.DefaultLat,
		DefaultLon: cfg.Location.DefaultLon,
	}, client, logger.Named("location"))

	walker := discover.New(discover.Config{
		BaseURL:          cfg.Crawler.BaseURL,
		DetailURLPattern: detailPattern,
		PageCeiling:      cfg.Crawler.PageCeiling,
		PageDelay:        cfg.PageDelay(),
	}, client, logger.Named("discover"))

	extractor := extract.New(extract.Config{
		RetryBudget:  cfg.Extract.RetryBudget,
		RetryBackoff: cfg.RetryBackoff(),
	}, client, logger.Named("extract"))

	classifier := classify.New(classify.Config{
		CategorySegments: cfg.Classifier.CategorySegments,
		AllowKeywords:    cfg.Classifier.AllowKeywords,
		DenyKeywords:     cfg.Classifier.DenyKeywords,
	})

	orchestrator := pipeline.New(pipeline.Config{
		Targets:            cfg.CrawlTargets(),
		TargetCount:        cfg.Pipeline.TargetCount,
		BatchSize:          cfg.Pipeline.BatchSize,
		ExtractConcurrency: cfg.Pipeline.ExtractConcurrency,
		BatchPause:         cfg.BatchPause(),
		Address:            cfg.Pipeline.Address,
	}, binder, walker, extractor, classifier, logger.Named("pipeline"))

	sinks, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	if serve {
		return serveAPI(ctx, cfg, orchestrator, sinks, logger)
	}
	return runOnce(ctx, orchestrator, sinks, logger)
}

func runOnce(ctx context.Context, orchestrator *pipeline.Orchestrator, sinks []catalog.ProductSink, logger *zap.Logger) error {
	products, stats := orchestrator.Run(ctx)

	for _, sink := range sinks {
		for _, p := range products {
			if err := sink.Store(ctx, p); err != nil {
				logger.Error("sink store failed", zap.String("url", p.URL), zap.Error(err))
				break
			}
		}
	}

	logger.Info("run complete",
		zap.Int("urls_discovered", stats.URLsDiscovered),
		zap.Int("accepted", stats.Accepted),
		zap.Int("nutrition_4_of_4", stats.NutritionFull),
		zap.Int("nutrition_3_of_4", stats.NutritionThree),
		zap.Int("nutrition_1_2_of_4", stats.NutritionPartial),
		zap.Int("nutrition_0_of_4", stats.NutritionNone),
		zap.Float64("with_composition_pct", stats.Percent(stats.WithComposition)),
	)
	if stats.Accepted == 0 {
		logger.Warn("no results")
	}
	return nil
}

func serveAPI(ctx context.Context, cfg config.Config, orchestrator *pipeline.Orchestrator, sinks []catalog.ProductSink, logger *zap.Logger) error {
	taskQueue := memory.NewQueue(cfg.Queue.Depth)
	defer taskQueue.Close()
	store := worker.NewTaskStore()
	clk := system.New()

	w := worker.New(taskQueue, store, orchestrator, sinks, clk, logger.Named("worker"))
	go w.Run(ctx)

	server := api.NewServer(taskQueue, store, uuid.NewGenerator(), clk, logger.Named("api"))
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", zap.Int("port", cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil
	}
}

func buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]catalog.ProductSink, func(), error) {
	var (
		sinks   []catalog.ProductSink
		closers []func()
	)

	if cfg.Export.CSVPath != "" {
		csvSink, err := export.NewCSVWriter(cfg.Export.CSVPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open csv sink: %w", err)
		}
		sinks = append(sinks, csvSink)
		closers = append(closers, func() {
			if err := csvSink.Close(); err != nil {
				logger.Error("close csv sink", zap.Error(err))
			}
		})
	}
	if cfg.Export.JSONLPath != "" {
		jsonlSink, err := export.NewJSONLWriter(cfg.Export.JSONLPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open jsonl sink: %w", err)
		}
		sinks = append(sinks, jsonlSink)
		closers = append(closers, func() {
			if err := jsonlSink.Close(); err != nil {
				logger.Error("close jsonl sink", zap.Error(err))
			}
		})
	}
	if cfg.DB.DSN != "" {
		store, err := postgres.NewProductStore(ctx, postgres.ProductStoreConfig{
			DSN:   cfg.DB.DSN,
			Table: cfg.DB.Table,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres sink: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
