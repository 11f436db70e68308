// Package submission hands signed extrinsics to the node and follows their lifecycle
// through the subscription the node opens for each of them.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transport"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const MethodSubmitAndWatch = "author_submitAndWatchExtrinsic"

// CodeAlreadyImported is the node's error code for an extrinsic already in its pool
const CodeAlreadyImported = 1013

var (
	ErrRejected            = errors.New("extrinsic rejected by node")
	ErrAlreadyImported     = errors.New("extrinsic already in the node's pool")
	ErrTimeout             = errors.New("timed out waiting for notification")
	ErrMalformedPayload    = errors.New("malformed notification payload")
	ErrUnknownSubscription = errors.New("notification for unknown subscription")
	ErrStreamClosed        = errors.New("notification stream closed")
)

type IRPCCaller interface {
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

// INotificationSource yields raw push frames; satisfied by notificationHandler.NotificationHandler.
// The channel is closed when the connection ends and Err then reports why.
type INotificationSource interface {
	Notifications() <-chan []byte
	Err() error
}

type SubmissionClient struct {
	caller        IRPCCaller
	notifications INotificationSource
	waitTimeout   time.Duration
	logger        *zap.Logger
}

// NewSubmissionClient creates a client. waitTimeout bounds every wait for
// notifications; zero leaves the bound to the caller's context.
func NewSubmissionClient(
	caller IRPCCaller,
	notifications INotificationSource,
	waitTimeout time.Duration,
	logger *zap.Logger,
) *SubmissionClient {
	return &SubmissionClient{
		caller:        caller,
		notifications: notifications,
		waitTimeout:   waitTimeout,
		logger:        logger,
	}
}

// Submit sends the hex-encoded extrinsic and returns the id of the subscription
// the node opened for it.
func (s *SubmissionClient) Submit(ctx context.Context, extrinsicHex string) (types.SubscriptionId, error) {
	s.logger.Sugar().Debugw("Submitting extrinsic", "length", len(extrinsicHex))

	var raw json.RawMessage
	if err := s.caller.Call(ctx, MethodSubmitAndWatch, []interface{}{extrinsicHex}, &raw); err != nil {
		var rpcErr *transport.RPCError
		if errors.As(err, &rpcErr) {
			if rpcErr.Code == CodeAlreadyImported {
				return 0, errors.Wrapf(ErrAlreadyImported, "code %d: %s", rpcErr.Code, rpcErr.Message)
			}
			s.logger.Sugar().Warnw("Node rejected extrinsic",
				"code", rpcErr.Code,
				"message", rpcErr.Message,
			)
			return 0, errors.Wrapf(ErrRejected, "code %d: %s", rpcErr.Code, rpcErr.Message)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, errors.Wrap(ErrTimeout, "no response to submit")
		}
		return 0, errors.Wrap(err, "failed to submit extrinsic")
	}

	var id types.SubscriptionId
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, errors.Wrapf(ErrRejected, "node returned a non-integer subscription id: %s", string(raw))
	}

	s.logger.Sugar().Infow("Extrinsic submitted", "subscriptionId", id)
	return id, nil
}

// AwaitNotification blocks until the next lifecycle update for id arrives
func (s *SubmissionClient) AwaitNotification(ctx context.Context, id types.SubscriptionId) (*types.NotificationEvent, error) {
	ctx, cancel := s.withWaitTimeout(ctx)
	defer cancel()
	return s.await(ctx, id)
}

// Watch streams lifecycle updates for id until a terminal status arrives, the wait
// times out or ctx ends. Both channels are closed when the stream ends; at most one
// error is delivered.
func (s *SubmissionClient) Watch(ctx context.Context, id types.SubscriptionId) (<-chan types.NotificationEvent, <-chan error) {
	events := make(chan types.NotificationEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(events)

		ctx, cancel := s.withWaitTimeout(ctx)
		defer cancel()

		for {
			event, err := s.await(ctx, id)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case events <- *event:
			case <-ctx.Done():
				errCh <- s.contextError(ctx)
				return
			}
			if event.Status.IsTerminal() {
				s.logger.Sugar().Infow("Extrinsic reached terminal status",
					"subscriptionId", id,
					"status", event.Status,
				)
				return
			}
		}
	}()

	return events, errCh
}

func (s *SubmissionClient) withWaitTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.waitTimeout > 0 {
		return context.WithTimeout(ctx, s.waitTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *SubmissionClient) contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return errors.Wrap(ctx.Err(), "stopped waiting for notification")
}

func (s *SubmissionClient) await(ctx context.Context, id types.SubscriptionId) (*types.NotificationEvent, error) {
	source := s.notifications.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil, s.contextError(ctx)
		case msg, ok := <-source:
			if !ok {
				if cause := s.notifications.Err(); cause != nil {
					return nil, fmt.Errorf("%w: %w", ErrStreamClosed, cause)
				}
				return nil, ErrStreamClosed
			}

			event, err := ParseNotification(msg)
			if err != nil {
				s.logger.Sugar().Warnw("Skipping malformed notification", "error", err, "frame", string(msg))
				continue
			}
			if event.SubscriptionId != id {
				s.logger.Sugar().Debugw("Skipping notification",
					"error", ErrUnknownSubscription,
					"subscriptionId", event.SubscriptionId,
					"awaiting", id,
				)
				continue
			}

			s.logger.Sugar().Infow("Extrinsic status update",
				"subscriptionId", id,
				"status", event.Status,
				"blockHash", event.BlockHash,
			)
			return event, nil
		}
	}
}
