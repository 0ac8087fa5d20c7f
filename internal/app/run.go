package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Bool("execution-enabled", a.cfg.ExecutionEnabled),
		zap.String("storage", a.cfg.StorageMode),
		zap.String("log-level", a.cfg.LogLevel))

	a.Start()

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.FeedWSURL),
		zap.Strings("instruments", a.stream.Subscriptions()))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

// Start launches every background component and marks the app ready.
func (a *App) Start() {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	a.gateway.ConnectAll(a.ctx)

	a.goRun("market-stream", a.stream.Run)
	a.goRun("feed-monitor", a.feed.Run)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.gateway.Run(a.ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.queue.Run(a.ctx)
	}()

	a.healthChecker.SetReady(true)
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) goRun(name string, run func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := run(a.ctx)
		if err != nil && !errors.Is(err, a.ctx.Err()) {
			a.logger.Error("component-error", zap.String("component", name), zap.Error(err))
		}
	}()
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
