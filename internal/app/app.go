package app

import (
	"context"
	"sync"

	"github.com/mselser95/execution-gateway/internal/audit"
	"github.com/mselser95/execution-gateway/internal/feed"
	"github.com/mselser95/execution-gateway/internal/gate"
	"github.com/mselser95/execution-gateway/internal/gateway"
	"github.com/mselser95/execution-gateway/internal/queue"
	"github.com/mselser95/execution-gateway/internal/storage"
	"github.com/mselser95/execution-gateway/pkg/cache"
	"github.com/mselser95/execution-gateway/pkg/config"
	"github.com/mselser95/execution-gateway/pkg/healthprobe"
	"github.com/mselser95/execution-gateway/pkg/httpserver"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/mselser95/execution-gateway/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	audit         *audit.Async
	tickCache     *cache.Ristretto[types.Tick]
	feed          *feed.Monitor
	stream        *websocket.Client
	gateway       *gateway.Gateway
	gate          *gate.Gate
	queue         *queue.Queue
	storage       storage.Store
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	Instruments []string // extra EXCHANGE:SYMBOL keys to stream on startup
}
