package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/execution-gateway/internal/gateway"
	"github.com/mselser95/execution-gateway/internal/queue"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

// OrderQueue is the intake side of the order queue.
type OrderQueue interface {
	Enqueue(req types.OrderRequest, lane types.Lane) (types.QueuedOrder, error)
	Status() queue.Status
	DeadLetters() []types.DeadLetterEntry
}

// BrokerGateway is the read and control surface of the broker gateway.
type BrokerGateway interface {
	Status() []gateway.BrokerStatus
	ResetBreaker(id types.BrokerID) error
	GetPrice(ctx context.Context, symbol, exchange string, hint types.BrokerID) (types.Quote, error)
	GetConsensusPrice(ctx context.Context, symbol, exchange string) (types.ConsensusQuote, error)
}

// FeedSnapshotter exposes the feed state.
type FeedSnapshotter interface {
	Snapshot(now time.Time) types.FeedState
}

// GateControl is the runtime kill switch and mode toggle.
type GateControl interface {
	Mode() (types.ExecutionMode, bool)
	SetMode(mode types.ExecutionMode) error
	SetEnabled(enabled bool)
}

// APIHandler serves the /api routes.
type APIHandler struct {
	queue   OrderQueue
	gateway BrokerGateway
	feed    FeedSnapshotter
	gate    GateControl
	logger  *zap.Logger
	timeout time.Duration
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(cfg *Config) *APIHandler {
	timeout := cfg.BrokerTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &APIHandler{
		queue:   cfg.Queue,
		gateway: cfg.Gateway,
		feed:    cfg.Feed,
		gate:    cfg.Gate,
		logger:  cfg.Logger,
		timeout: timeout,
	}
}

// GateState is the gate section of the status response.
type GateState struct {
	Mode    types.ExecutionMode `json:"mode"`
	Enabled bool                `json:"enabled"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Brokers []gateway.BrokerStatus `json:"brokers"`
	Queue   queue.Status           `json:"queue"`
	Feed    types.FeedState        `json:"feed"`
	Gate    GateState              `json:"gate"`
	At      time.Time              `json:"at"`
}

// OrderSubmission is the body of POST /api/orders.
type OrderSubmission struct {
	types.OrderRequest
	Lane types.Lane `json:"lane,omitempty"`
}

// OrderAccepted is the body returned for an enqueued order.
type OrderAccepted struct {
	RequestID  string     `json:"request_id"`
	Lane       types.Lane `json:"lane"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// GateUpdate is the body of PUT /api/gate. Absent fields are unchanged.
type GateUpdate struct {
	Mode    *types.ExecutionMode `json:"mode,omitempty"`
	Enabled *bool                `json:"enabled,omitempty"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes mounts the API on r.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/status", h.HandleStatus)
	r.Get("/deadletters", h.HandleDeadLetters)
	r.Post("/orders", h.HandleSubmitOrder)
	r.Put("/gate", h.HandleGateUpdate)
	r.Post("/brokers/{broker}/reset", h.HandleResetBreaker)
	r.Get("/price/{exchange}/{symbol}", h.HandlePrice)
}

// HandleStatus handles GET /api/status.
func (h *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	mode, enabled := h.gate.Mode()
	h.writeJSON(w, http.StatusOK, StatusResponse{
		Brokers: h.gateway.Status(),
		Queue:   h.queue.Status(),
		Feed:    h.feed.Snapshot(now),
		Gate:    GateState{Mode: mode, Enabled: enabled},
		At:      now,
	})
}

// HandleDeadLetters handles GET /api/deadletters.
func (h *APIHandler) HandleDeadLetters(w http.ResponseWriter, r *http.Request) {
	entries := h.queue.DeadLetters()
	if entries == nil {
		entries = []types.DeadLetterEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// HandleSubmitOrder handles POST /api/orders. Validation of the order
// itself happens in the gate so every attempt leaves a record.
func (h *APIHandler) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var sub OrderSubmission
	err := json.NewDecoder(r.Body).Decode(&sub)
	if err != nil {
		h.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if sub.Lane == "" {
		sub.Lane = types.LaneRegular
	}

	queued, err := h.queue.Enqueue(sub.OrderRequest, sub.Lane)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	OrdersAcceptedTotal.WithLabelValues(string(queued.Lane)).Inc()
	h.logger.Info("order-submitted",
		zap.String("request-id", queued.Request.RequestID),
		zap.String("symbol", sub.Order.Symbol),
		zap.String("lane", string(queued.Lane)))

	h.writeJSON(w, http.StatusAccepted, OrderAccepted{
		RequestID:  queued.Request.RequestID,
		Lane:       queued.Lane,
		EnqueuedAt: queued.EnqueuedAt,
	})
}

// HandleGateUpdate handles PUT /api/gate.
func (h *APIHandler) HandleGateUpdate(w http.ResponseWriter, r *http.Request) {
	var upd GateUpdate
	err := json.NewDecoder(r.Body).Decode(&upd)
	if err != nil {
		h.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if upd.Mode != nil {
		err = h.gate.SetMode(*upd.Mode)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if upd.Enabled != nil {
		h.gate.SetEnabled(*upd.Enabled)
	}

	mode, enabled := h.gate.Mode()
	h.writeJSON(w, http.StatusOK, GateState{Mode: mode, Enabled: enabled})
}

// HandleResetBreaker handles POST /api/brokers/{broker}/reset.
func (h *APIHandler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	id := types.BrokerID(chi.URLParam(r, "broker"))

	err := h.gateway.ResetBreaker(id)
	if errors.Is(err, types.ErrUnknownBroker) {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("breaker-reset-requested", zap.String("broker", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

// HandlePrice handles GET /api/price/{exchange}/{symbol}. With
// ?consensus=true it returns the median across brokers; otherwise
// ?broker= selects a broker hint.
func (h *APIHandler) HandlePrice(w http.ResponseWriter, r *http.Request) {
	exchange := chi.URLParam(r, "exchange")
	symbol := chi.URLParam(r, "symbol")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if r.URL.Query().Get("consensus") == "true" {
		cq, err := h.gateway.GetConsensusPrice(ctx, symbol, exchange)
		if err != nil {
			h.writeError(w, err.Error(), statusFor(err))
			return
		}
		h.writeJSON(w, http.StatusOK, cq)
		return
	}

	hint := types.BrokerID(r.URL.Query().Get("broker"))
	if hint == "" {
		hint = types.BrokerAuto
	}
	q, err := h.gateway.GetPrice(ctx, symbol, exchange, hint)
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrUnknownBroker):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUnavailable), errors.Is(err, types.ErrNoBrokers):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
