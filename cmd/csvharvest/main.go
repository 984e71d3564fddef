package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"csvharvest/internal/config"
	"csvharvest/internal/harvest"
	"csvharvest/internal/logging"
	"csvharvest/internal/metrics"
	"csvharvest/internal/metrics/datadog"
	"csvharvest/internal/metrics/prompush"
	"csvharvest/internal/notify"
	"csvharvest/internal/statusui"
	"csvharvest/internal/storage"

	// register notification sinks and storage backends with their factories.
	_ "csvharvest/internal/notify/kafka"
	_ "csvharvest/internal/notify/nats"
	_ "csvharvest/internal/storage/all"
)

func main() {
	os.Exit(run())
}

// run loads the harvest config, wires the store, notifier and metrics
// backend, and drains the CSV source into the store. Deferred cleanup runs
// before the exit code is returned.
func run() int {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		logFormat         string
		listenAddr        string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/harvest.json", "harvest config path (.json or .toml)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: prometheus, datadog, none (overrides config and METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides config and PUSHGATEWAY_URL)")
	flag.StringVar(&logFormat, "log-format", "console", "log format: console or json")
	flag.StringVar(&listenAddr, "listen", "", "serve /healthz, /status and /metrics on this address, e.g. :8080")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable debug logs")

	flag.Parse()

	logging.Setup(*verbose, logFormat)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fail("load config: %v", err)
	}

	issues := config.Validate(*cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Error().Str("config", cfgPath).Msg("configuration is invalid")
		return 1
	}
	if validate {
		log.Info().Str("config", cfgPath).Msg("configuration is valid")
		return 0
	}

	settings, err := harvest.SettingsFrom(cfg.Job, cfg.Harvester.CSV)
	if err != nil {
		return fail("harvester settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gatherer := setupMetrics(cfg, metricsBackendFlg, pushGatewayURLFlg)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics flush failed")
		}
	}()

	store, err := storage.New(ctx, storage.FromConfig(cfg.Storage))
	if err != nil {
		return fail("storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close storage")
		}
	}()

	opts := []harvest.Option{}
	if cfg.Notify.Kind != "" {
		sink, err := notify.New(notify.Config{
			Kind:    cfg.Notify.Kind,
			URL:     cfg.Notify.URL,
			Brokers: cfg.Notify.Brokers,
			Topic:   cfg.Notify.Topic,
		})
		if err != nil {
			return fail("notify: %v", err)
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn().Err(err).Msg("close notify sink")
			}
		}()
		opts = append(opts, harvest.WithNotifier(sink))
	}

	h := harvest.New(settings, store, opts...)

	log.Info().
		Str("job", cfg.Job).
		Str("source", settings.FileLocation).
		Str("storage", cfg.Storage.Kind).
		Str("notify", cfg.Notify.Kind).
		Msg("harvest starting")

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	var srv *statusui.Server
	if listenAddr != "" {
		srv = statusui.NewServer(statusui.Config{Addr: listenAddr, Stats: h.Stats, Gatherer: gatherer})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	var stats harvest.Stats
	g.Go(func() error {
		var err error
		stats, err = harvest.Run(gctx, h)
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Int64("rows", stats.Rows).Msg("harvest failed")
		return 1
	}
	log.Info().
		Int64("rows", stats.Rows).
		Int64("stored", stats.Stored).
		Int64("rejected", stats.Rejected).
		Int64("batches", stats.Batches).
		Dur("elapsed", time.Since(start).Truncate(time.Millisecond)).
		Msg("harvest completed")
	return 0
}

// setupMetrics installs the configured backend and returns a gatherer for
// the status server when the backend is Prometheus. Selection order is
// flag, then environment, then config.
func setupMetrics(cfg *config.Config, backendFlg, gatewayFlg string) prometheus.Gatherer {
	backendName := firstNonEmpty(backendFlg, os.Getenv("METRICS_BACKEND"), cfg.Metrics.Backend)

	switch backendName {
	case "prometheus", "pushgateway":
		gwURL := firstNonEmpty(gatewayFlg, os.Getenv("PUSHGATEWAY_URL"), cfg.Metrics.PushgatewayURL)
		b, err := prompush.NewBackend(cfg.Job, gwURL)
		if err != nil {
			log.Warn().Err(err).Msg("metrics: failed to init prometheus backend; using nop")
			return nil
		}
		log.Info().Str("backend", backendName).Str("url", gwURL).Msg("metrics enabled")
		metrics.SetBackend(b)
		return b.Gatherer()

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       firstNonEmpty(cfg.Metrics.DatadogAddr, os.Getenv("DD_DOGSTATSD_URL"), "127.0.0.1:8125"),
			Namespace:  "csvharvest.",
			GlobalTags: cfg.Metrics.DatadogTags,
		})
		if err != nil {
			log.Warn().Err(err).Msg("metrics: failed to init datadog backend; using nop")
			return nil
		}
		log.Info().Str("backend", backendName).Msg("metrics enabled")
		metrics.SetBackend(b)

	case "", "none":
		log.Debug().Msg("metrics disabled")

	default:
		log.Warn().Str("backend", backendName).Msg("unknown metrics backend; metrics disabled")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fail(format string, a ...any) int {
	log.Error().Msgf(format, a...)
	return 1
}
