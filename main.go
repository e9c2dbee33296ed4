package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/dashboard"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/reader/kraken"
	"bookflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	shardPath := flag.String("shards", "config/ip_shards.yml", "Path to IP shard configuration file")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithEnv("APP_ENV").WithFields(logger.Fields{
		"service":     cfg.Bookflow.Name,
		"version":     cfg.Bookflow.Version,
		"environment": env,
	}).Info("starting bookflow")

	if config.IsProductionLike(env) && !cfg.Writer.Kafka.Enabled {
		log.WithFields(logger.Fields{"environment": env}).Error("kafka writer must be enabled outside development")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	if cfg.Metrics.Prometheus.Enabled {
		metrics.Init(cfg.Metrics.Prometheus.Address)
	}
	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		metrics.InitCloudWatch(ctx, metrics.CloudWatchOptions{
			Region:          cw.Region,
			Namespace:       cw.Namespace,
			Dashboard:       cw.Dashboard,
			AccessKeyID:     cw.AccessKeyID,
			SecretAccessKey: cw.SecretAccessKey,
		})
	}

	channels := channel.NewChannels(
		cfg.Channels.BookBuffer,
		cfg.Channels.TradeBuffer,
		cfg.Channels.AlertBuffer,
	)

	channels.StartMetricsReporting(ctx, cfg.Metrics.ReportInterval)
	if cfg.Metrics.ChannelSize {
		metrics.StartChannelSizeMetrics(ctx, channels, time.Second)
	}

	shardCfg, err := config.LoadIPShards(*shardPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithFields(logger.Fields{"path": *shardPath}).Info("no shard file; using a single connection per stream")
		shardCfg = config.DefaultShards(cfg)
	} else if err != nil {
		log.WithError(err).Error("failed to load shard configuration")
		os.Exit(1)
	}

	readers := make([]*kraken.Reader, 0, len(shardCfg.Shards))
	for _, shard := range shardCfg.Shards {
		readers = append(readers, kraken.NewReader(
			cfg,
			channels,
			config.Instruments(shard.BookSymbols),
			config.Instruments(shard.TradeSymbols),
			shard.IP,
		))
	}

	books := make(dashboard.BookSources, 0, len(readers))
	for _, r := range readers {
		books = append(books, r)
	}
	dash, err := dashboard.NewServer(cfg.Dashboard, log, books, channels)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}

	var w writer.Writer
	if cfg.Writer.Kafka.Enabled {
		kw, err := writer.NewKafkaWriter(cfg, channels)
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			os.Exit(1)
		}
		w = kw
	} else {
		log.WithComponent("main").Info("kafka disabled; logging records")
		w = writer.NewLogWriter(channels)
	}

	var wg sync.WaitGroup

	dashDone := make(chan struct{})
	go func() {
		defer close(dashDone)
		if err := dash.Run(ctx, cfg.Bookflow.Name); err != nil {
			log.WithError(err).Warn("dashboard stopped")
		}
	}()

	for _, r := range readers {
		wg.Add(1)
		go func(reader *kraken.Reader) {
			defer wg.Done()
			if err := reader.Start(ctx); err != nil {
				log.WithError(err).Warn("kraken reader failed to start")
			}
		}(r)
	}

	if err := w.Start(ctx); err != nil {
		log.WithError(err).Error("writer failed to start")
		os.Exit(1)
	}

	wg.Wait()
	log.WithFields(logger.Fields{"shards": len(readers)}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		log.Info("stopping kraken readers")
		for _, r := range readers {
			r.Stop()
		}
		log.Info("stopping writer")
		w.Stop()
		channels.Close()
		<-dashDone
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("bookflow stopped")
}
