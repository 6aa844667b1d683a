package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/config"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dedup"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch/email"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch/email/provider"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch/pubsubsink"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch/slack"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch/webhook"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/enrich"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/metrics"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/pipeline"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/rules"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/store"
	"github.com/MohamedRouatbi/realtime-sports-scraper/pkg/shared"
)

func main() {
	// Parse command-line flags
	cfg := &config.Config{}
	flag.StringVar(&cfg.SourcesFile, "sources-file", "sources.yml", "Path to the YAML source list")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", ""), "Redis address for metrics reporting (empty disables)")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN for alert history (empty disables)")
	flag.IntVar(&cfg.QueueSize, "queue-size", 256, "Fan-in queue capacity between connectors and processing")
	flag.StringVar(&cfg.QueuePolicy, "queue-policy", config.PolicyBlock, "Fan-in backpressure policy: block or drop_oldest")
	flag.IntVar(&cfg.DispatchQueueSize, "dispatch-queue-size", 128, "Dispatch handoff queue capacity")
	flag.DurationVar(&cfg.DedupTTL, "dedup-ttl", 5*time.Second, "Dedup fingerprint time-to-live")
	flag.DurationVar(&cfg.MetricsInterval, "metrics-interval", 30*time.Second, "Metrics reporting interval")
	flag.StringVar(&cfg.MatchDetailsURL, "match-details-url", os.Getenv("MATCH_DETAILS_URL"), "Base URL of the match details lookup service (empty disables enrichment)")
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting sports scraper pipeline",
		"sources_file", cfg.SourcesFile,
		"redis_addr", cfg.RedisAddr,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"queue_size", cfg.QueueSize,
		"queue_policy", cfg.QueuePolicy,
		"dedup_ttl", cfg.DedupTTL,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		slog.Error("Failed to load sources", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded source list", "sources", len(sources.Sources))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Metrics reporting is optional: without Redis the collector still counts
	// and serves Stats, it just doesn't publish.
	var collector *metrics.Collector
	if cfg.RedisAddr != "" {
		redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			slog.Info("Tip: Start Redis with 'docker compose up -d redis' or ensure Redis is running")
			os.Exit(1)
		}
		defer redisClient.Close()
		collector = metrics.NewCollector("sports-scraper", redisClient)
	} else {
		collector = metrics.NewCollector("sports-scraper", nil)
	}
	collector.SetReportInterval(cfg.MetricsInterval)
	collector.Start(ctx)
	defer collector.Stop()

	var alertStore pipeline.AlertStore
	if cfg.PostgresDSN != "" {
		db, err := store.NewDB(cfg.PostgresDSN)
		if err != nil {
			slog.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		alertStore = db
	}

	sinks := buildSinks(ctx)
	if len(sinks) == 0 {
		slog.Warn("No notification sinks configured, alerts will only be logged and persisted")
	}
	dispatcher := dispatch.NewDispatcher(cfg.DispatchQueueSize, sinks,
		dispatch.WithDropCallback(collector.RecordDropped),
	)

	engine := rules.NewEngine()
	rules.RegisterDefaults(engine)
	slog.Info("Registered rules", "rules", engine.RuleNames())

	var enricher *enrich.Resolver
	if cfg.MatchDetailsURL != "" {
		fetcher, err := enrich.NewHTTPFetcher(cfg.MatchDetailsURL)
		if err != nil {
			slog.Error("Invalid match details URL", "error", err)
			os.Exit(1)
		}
		enricher = enrich.NewResolver(fetcher)
		slog.Info("Match details enrichment enabled", "url", cfg.MatchDetailsURL)
	}

	p, err := pipeline.New(*cfg, sources, pipeline.Options{
		Engine:     engine,
		Dedup:      dedup.NewGate(cfg.DedupTTL),
		Dispatcher: dispatcher,
		Enricher:   enricher,
		Collector:  collector,
		Store:      alertStore,
	})
	if err != nil {
		slog.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if err := p.Start(ctx); err != nil {
		slog.Error("Failed to start pipeline", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	p.Stop()
	slog.Info("Shutdown complete")
}

// buildSinks assembles the notification sinks from environment configuration.
// Each sink is optional; a misconfigured one is skipped with a warning rather
// than aborting startup.
func buildSinks(ctx context.Context) []dispatch.Sink {
	var sinks []dispatch.Sink

	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		sink, err := webhook.NewSink(url)
		if err != nil {
			slog.Warn("Skipping webhook sink", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		sink, err := slack.NewSink(url)
		if err != nil {
			slog.Warn("Skipping Slack sink", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if recipients := os.Getenv("ALERT_EMAIL_TO"); recipients != "" {
		registry := provider.NewRegistry()
		registry.Register(provider.NewResendProvider(os.Getenv("RESEND_API_KEY")))
		registry.Register(provider.NewSESProvider(ctx, shared.GetEnvOrDefault("AWS_REGION", "us-east-1")))

		from := shared.GetEnvOrDefault("ALERT_EMAIL_FROM", "alerts@sports-scraper.local")
		sink, err := email.NewSink(registry, from, recipients)
		if err != nil {
			slog.Warn("Skipping email sink", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if project := os.Getenv("PUBSUB_PROJECT_ID"); project != "" {
		pcfg := pubsubsink.DefaultConfig()
		pcfg.ProjectID = project
		pcfg.TopicName = shared.GetEnvOrDefault("PUBSUB_TOPIC", "match-alerts")
		sink, err := pubsubsink.NewSink(ctx, pcfg)
		if err != nil {
			slog.Warn("Skipping Pub/Sub sink", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	return sinks
}
