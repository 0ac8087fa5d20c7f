package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is the "no data" signal. Remote failures wrap it.
	ErrUnavailable = errors.New("unavailable")

	// ErrInvalidOrder marks a malformed order payload.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrUnknownBroker is returned when a hint names an unregistered broker.
	ErrUnknownBroker = errors.New("unknown broker")

	// ErrNoBrokers is returned when the gateway has nothing registered.
	ErrNoBrokers = errors.New("no brokers registered")

	// ErrMissingDecision rejects LIVE orders that carry no TradeDecision.
	ErrMissingDecision = errors.New("live execution requires a trade decision")
)

// RemoteKind classifies an expected remote failure.
type RemoteKind string

const (
	RemoteTimeout     RemoteKind = "timeout"
	RemoteRateLimited RemoteKind = "rate_limited"
	RemoteAuth        RemoteKind = "auth"
	RemoteUnavailable RemoteKind = "unavailable"
	RemoteRejected    RemoteKind = "rejected"
	RemoteNoData      RemoteKind = "no_data"
)

// RemoteError is an expected failure from a broker or the streaming endpoint.
// It always matches ErrUnavailable via errors.Is.
type RemoteError struct {
	Broker BrokerID
	Op     string
	Kind   RemoteKind
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Broker, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Broker, e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is reports ErrUnavailable for every remote failure.
func (e *RemoteError) Is(target error) bool {
	return target == ErrUnavailable
}

// NewRemoteError builds a RemoteError, classifying context errors as timeouts.
func NewRemoteError(broker BrokerID, op string, kind RemoteKind, err error) *RemoteError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = RemoteTimeout
	}
	return &RemoteError{Broker: broker, Op: op, Kind: kind, Err: err}
}

// InternalError is a programming error surfaced from an adapter. It is not
// an expected remote failure and must not be treated as one by callers.
type InternalError struct {
	Broker BrokerID
	Op     string
	Cause  any
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in %s %s: %v", e.Broker, e.Op, e.Cause)
}

// IsInternal reports whether err is an InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
