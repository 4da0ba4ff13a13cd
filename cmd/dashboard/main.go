package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/netwatch-labs/ddos-dashboard/internal/config"
	"github.com/netwatch-labs/ddos-dashboard/internal/hub"
	"github.com/netwatch-labs/ddos-dashboard/internal/poller"
	"github.com/netwatch-labs/ddos-dashboard/internal/server"
	"github.com/netwatch-labs/ddos-dashboard/internal/stats"
	"github.com/netwatch-labs/ddos-dashboard/pkg/detector"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)

	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	applyLogLevel(log, cfg.LogLevel)

	store := stats.New(log)
	h := hub.New(hub.Config{PushInterval: cfg.StatsPushInterval}, store, log)
	source := detector.NewClient(detector.Config{
		BaseURL: cfg.DetectionAPIURL,
		Timeout: cfg.PollTimeout,
	}, log)

	// The poller runs for the lifetime of the process.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := poller.New(poller.Config{
		Interval:        cfg.PollInterval,
		TrafficBaseline: cfg.TrafficBaseline,
	}, source, store, h, log)
	go p.Start(ctx)

	if path := config.GetEnv("CONFIG_FILE", ""); path != "" {
		err := config.Watch(ctx, path, log, func(next config.DashboardConfig) {
			applyLogLevel(log, next.LogLevel)
		})
		if err != nil {
			log.WithError(err).Warn("Config file watching disabled")
		}
	}

	srv := server.New(cfg, store, h, source, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Dashboard server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down dashboard")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func applyLogLevel(log *logrus.Logger, level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, keeping current")
		return
	}
	log.SetLevel(parsed)
}
