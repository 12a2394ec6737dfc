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

	"fiatramp/internal/app"
	"fiatramp/internal/config"
	"fiatramp/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.WithField("error", err).Fatal("failed to load config")
	}

	container, err := app.InitializeContainer()
	if err != nil {
		logrus.WithField("error", err).Fatal("failed to initialize services")
	}
	defer container.Shutdown()
	logger := container.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go container.Poller.Run(ctx)

	engine := router.Setup(container.Handlers, logger)
	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		logger.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("error", err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("server shutdown failed")
	}
}
