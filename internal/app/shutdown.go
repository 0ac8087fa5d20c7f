package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop intake first so nothing new reaches the queue
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Cancel context to signal all components
	a.cancel()

	// Wait for all goroutines
	a.wg.Wait()

	a.gateway.DisconnectAll(shutdownCtx)

	a.closeStorage()

	err = a.audit.Close()
	if err != nil {
		a.logger.Error("audit-close-error", zap.Error(err))
	}

	a.tickCache.Close()

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) closeStorage() {
	if a.storage == nil {
		return
	}
	err := a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}
}
