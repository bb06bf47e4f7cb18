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

	"github.com/sirupsen/logrus"

	"github.com/crysgarage/engine/config"
	"github.com/crysgarage/engine/internal/logging"
	"github.com/crysgarage/engine/internal/server"
	"github.com/crysgarage/engine/mastering"
)

func main() {
	configPath := flag.String("config", "", "Configuration JSON file (optional)")
	addr := flag.String("addr", "", "Listen address override")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "Grace period for in-flight requests")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		die("config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		die("logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := mastering.New(mastering.WithLogger(logger), mastering.WithLimits(cfg.Limits()))
	pool := mastering.NewPool(p, cfg.Workers, cfg.QueueSize)
	pool.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(p, pool, logger, cfg.MaxInputBytes).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{"addr": cfg.Addr, "workers": cfg.Workers}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("forced shutdown")
	}
	cancel()
	pool.Stop()
	logger.Info("server exited")
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
