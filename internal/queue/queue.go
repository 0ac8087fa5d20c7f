// Package queue rate-limits order delivery through two priority lanes and
// keeps failed dispatches on a dead-letter list.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/execution-gateway/internal/audit"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

const (
	DefaultRegularLimit  = 10
	DefaultRegularWindow = time.Second
	DefaultSmartInterval = time.Second
	DefaultIdleInterval  = 10 * time.Millisecond
)

// Dispatcher processes one dequeued order. A returned error moves the order
// to the dead-letter list.
type Dispatcher interface {
	Dispatch(ctx context.Context, req types.OrderRequest) error
}

// DeadLetterStore persists dead-letter entries.
type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, entry *types.DeadLetterEntry) error
}

// Config holds queue configuration.
type Config struct {
	Dispatcher    Dispatcher
	Store         DeadLetterStore // optional
	Audit         audit.Sink
	Logger        *zap.Logger
	RegularLimit  int
	RegularWindow time.Duration
	SmartInterval time.Duration
	IdleInterval  time.Duration
	StoreTimeout  time.Duration
	Now           func() time.Time // optional, for tests
}

// Status is a point-in-time view of the queue.
type Status struct {
	RegularDepth       int    `json:"regular_depth"`
	SmartDepth         int    `json:"smart_depth"`
	DeadLetters        int    `json:"dead_letters"`
	RegularWindowUsed  int    `json:"regular_window_used"`
	RegularWindowLimit int    `json:"regular_window_limit"`
	SmartReadyInMs     int64  `json:"smart_ready_in_ms"`
	Dispatched         uint64 `json:"dispatched"`
}

// Queue owns both lanes and the dead-letter list.
type Queue struct {
	dispatcher    Dispatcher
	store         DeadLetterStore
	audit         audit.Sink
	logger        *zap.Logger
	regularLimit  int
	regularWindow time.Duration
	smartInterval time.Duration
	idleInterval  time.Duration
	storeTimeout  time.Duration
	now           func() time.Time

	mu          sync.Mutex
	regular     []types.QueuedOrder
	smart       []types.QueuedOrder
	regularSent []time.Time // dispatch times inside the trailing window
	lastSmart   time.Time
	deadLetters []types.DeadLetterEntry
	dispatched  uint64
}

// New creates a queue.
func New(cfg *Config) (*Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	q := &Queue{
		dispatcher:    cfg.Dispatcher,
		store:         cfg.Store,
		audit:         cfg.Audit,
		logger:        cfg.Logger,
		regularLimit:  cfg.RegularLimit,
		regularWindow: cfg.RegularWindow,
		smartInterval: cfg.SmartInterval,
		idleInterval:  cfg.IdleInterval,
		storeTimeout:  cfg.StoreTimeout,
		now:           cfg.Now,
	}
	if q.audit == nil {
		q.audit = audit.Nop{}
	}
	if q.regularLimit <= 0 {
		q.regularLimit = DefaultRegularLimit
	}
	if q.regularWindow <= 0 {
		q.regularWindow = DefaultRegularWindow
	}
	if q.smartInterval <= 0 {
		q.smartInterval = DefaultSmartInterval
	}
	if q.idleInterval <= 0 {
		q.idleInterval = DefaultIdleInterval
	}
	if q.storeTimeout <= 0 {
		q.storeTimeout = 5 * time.Second
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q, nil
}

// Enqueue appends the request to its lane. It never blocks and never rejects
// for backpressure; only an unknown lane is an error.
func (q *Queue) Enqueue(req types.OrderRequest, lane types.Lane) (types.QueuedOrder, error) {
	if lane != types.LaneRegular && lane != types.LaneSmart {
		return types.QueuedOrder{}, fmt.Errorf("unknown lane %q", lane)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	item := types.QueuedOrder{Request: req, Lane: lane, EnqueuedAt: q.now()}

	q.mu.Lock()
	if lane == types.LaneSmart {
		q.smart = append(q.smart, item)
	} else {
		q.regular = append(q.regular, item)
	}
	q.updateDepthLocked()
	q.mu.Unlock()

	EnqueuedTotal.WithLabelValues(string(lane)).Inc()
	q.logger.Debug("order-enqueued",
		zap.String("request-id", req.RequestID),
		zap.String("symbol", req.Order.Symbol),
		zap.String("lane", string(lane)))
	return item, nil
}

// Step makes one scheduling decision and dispatches at most one order.
// Smart orders go first whenever the smart lane is eligible; otherwise a
// regular order goes if the trailing window has room. Reports whether an
// order was dispatched.
func (q *Queue) Step(ctx context.Context) bool {
	item, ok := q.next()
	if !ok {
		return false
	}
	q.dispatch(ctx, item)
	return true
}

// Run loops Step until ctx is done, sleeping briefly when idle.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("queue-dispatch-loop-starting",
		zap.Int("regular-limit", q.regularLimit),
		zap.Duration("smart-interval", q.smartInterval))

	for {
		if ctx.Err() != nil {
			q.logger.Info("queue-dispatch-loop-stopping")
			return
		}
		if q.Step(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			q.logger.Info("queue-dispatch-loop-stopping")
			return
		case <-time.After(q.idleInterval):
		}
	}
}

// Status returns a snapshot of depths, dead letters and window usage.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.pruneLocked(now)

	st := Status{
		RegularDepth:       len(q.regular),
		SmartDepth:         len(q.smart),
		DeadLetters:        len(q.deadLetters),
		RegularWindowUsed:  len(q.regularSent),
		RegularWindowLimit: q.regularLimit,
		Dispatched:         q.dispatched,
	}
	if !q.lastSmart.IsZero() {
		if wait := q.smartInterval - now.Sub(q.lastSmart); wait > 0 {
			st.SmartReadyInMs = wait.Milliseconds()
		}
	}
	return st
}

// DeadLetters returns a copy of the dead-letter list.
func (q *Queue) DeadLetters() []types.DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.DeadLetterEntry(nil), q.deadLetters...)
}

func (q *Queue) next() (types.QueuedOrder, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.pruneLocked(now)

	var item types.QueuedOrder
	switch {
	case len(q.smart) > 0 && (q.lastSmart.IsZero() || now.Sub(q.lastSmart) >= q.smartInterval):
		item = q.smart[0]
		q.smart[0] = types.QueuedOrder{}
		q.smart = q.smart[1:]
		q.lastSmart = now
	case len(q.regular) > 0 && len(q.regularSent) < q.regularLimit:
		item = q.regular[0]
		q.regular[0] = types.QueuedOrder{}
		q.regular = q.regular[1:]
		q.regularSent = append(q.regularSent, now)
	default:
		return types.QueuedOrder{}, false
	}

	q.dispatched++
	q.updateDepthLocked()
	DispatchedTotal.WithLabelValues(string(item.Lane)).Inc()
	WaitSeconds.WithLabelValues(string(item.Lane)).Observe(now.Sub(item.EnqueuedAt).Seconds())
	return item, true
}

func (q *Queue) dispatch(ctx context.Context, item types.QueuedOrder) {
	err := q.safeDispatch(ctx, item.Request)
	if err == nil {
		q.logger.Debug("order-dispatched",
			zap.String("request-id", item.Request.RequestID),
			zap.String("lane", string(item.Lane)))
		return
	}
	q.deadLetter(ctx, item, err)
}

func (q *Queue) safeDispatch(ctx context.Context, req types.OrderRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return q.dispatcher.Dispatch(ctx, req)
}

func (q *Queue) deadLetter(ctx context.Context, item types.QueuedOrder, cause error) {
	entry := types.DeadLetterEntry{
		Request:   item.Request,
		Error:     cause.Error(),
		Lane:      item.Lane,
		Timestamp: q.now(),
	}

	q.mu.Lock()
	q.deadLetters = append(q.deadLetters, entry)
	q.mu.Unlock()

	DeadLettersTotal.WithLabelValues(string(item.Lane)).Inc()
	q.logger.Warn("order-dead-lettered",
		zap.String("request-id", item.Request.RequestID),
		zap.String("symbol", item.Request.Order.Symbol),
		zap.String("lane", string(item.Lane)),
		zap.Error(cause))
	q.audit.Record("queue.dead_letter", audit.OutcomeFailure, map[string]any{
		"request_id": item.Request.RequestID,
		"symbol":     item.Request.Order.Symbol,
		"lane":       string(item.Lane),
		"error":      entry.Error,
	})

	if q.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.storeTimeout)
	defer cancel()
	if err := q.store.SaveDeadLetter(sctx, &entry); err != nil {
		q.logger.Error("dead-letter-persist-failed",
			zap.String("request-id", item.Request.RequestID),
			zap.Error(err))
	}
}

// pruneLocked drops regular dispatch times outside the trailing window.
func (q *Queue) pruneLocked(now time.Time) {
	i := 0
	for i < len(q.regularSent) && now.Sub(q.regularSent[i]) >= q.regularWindow {
		i++
	}
	if i > 0 {
		q.regularSent = append(q.regularSent[:0], q.regularSent[i:]...)
	}
}

func (q *Queue) updateDepthLocked() {
	DepthGauge.WithLabelValues(string(types.LaneRegular)).Set(float64(len(q.regular)))
	DepthGauge.WithLabelValues(string(types.LaneSmart)).Set(float64(len(q.smart)))
}
