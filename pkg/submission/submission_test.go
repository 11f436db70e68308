package submission

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Layr-Labs/extrinsic-submitter-go/internal/tests"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/notificationHandler"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transport"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testExtrinsicHex = "0xc10181ff"

func newSubmissionClient(t *testing.T, waitTimeout time.Duration, handler tests.MockHandler) (*SubmissionClient, *tests.MockNode) {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	node := tests.NewMockNode(t, handler)
	notifications := notificationHandler.NewNotificationHandler(logger, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := transport.Dial(ctx, &transport.ClientConfig{
		URL:              node.URL(),
		NotificationSink: notifications,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewSubmissionClient(client, notifications, waitTimeout, logger), node
}

func Test_Submit(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		s, node := newSubmissionClient(t, time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: 42}
		})

		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionId(42), id)

		requests := node.Requests()
		require.Len(t, requests, 1)
		assert.Equal(t, MethodSubmitAndWatch, requests[0].Method)
		assert.Equal(t, `"`+testExtrinsicHex+`"`, string(requests[0].Params[0]))
	})

	t.Run("quoted subscription id", func(t *testing.T) {
		s, _ := newSubmissionClient(t, time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: "7"}
		})
		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionId(7), id)
	})

	t.Run("node error object", func(t *testing.T) {
		s, _ := newSubmissionClient(t, time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Error: &tests.MockRPCError{Code: 1010, Message: "Invalid Transaction"}}
		})
		_, err := s.Submit(context.Background(), testExtrinsicHex)
		require.ErrorIs(t, err, ErrRejected)
		assert.Contains(t, err.Error(), "1010")
		assert.Contains(t, err.Error(), "Invalid Transaction")
	})

	t.Run("already imported is not a rejection", func(t *testing.T) {
		s, _ := newSubmissionClient(t, time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Error: &tests.MockRPCError{Code: CodeAlreadyImported, Message: "Transaction Already Imported"}}
		})
		_, err := s.Submit(context.Background(), testExtrinsicHex)
		require.ErrorIs(t, err, ErrAlreadyImported)
		assert.NotErrorIs(t, err, ErrRejected)
	})

	t.Run("non-integer result", func(t *testing.T) {
		s, _ := newSubmissionClient(t, time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: map[string]string{"id": "x"}}
		})
		_, err := s.Submit(context.Background(), testExtrinsicHex)
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("transport failure is not a rejection", func(t *testing.T) {
		s, node := newSubmissionClient(t, time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: 1}
		})
		node.Close()

		_, err := s.Submit(context.Background(), testExtrinsicHex)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRejected)
		assert.ErrorIs(t, err, transport.ErrClosed)
	})

	t.Run("silent node is a timeout", func(t *testing.T) {
		s, _ := newSubmissionClient(t, time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Silent: true}
		})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := s.Submit(ctx, testExtrinsicHex)
		require.ErrorIs(t, err, ErrTimeout)
		assert.NotErrorIs(t, err, ErrRejected)
	})
}

func Test_AwaitNotification(t *testing.T) {
	t.Run("receives first update", func(t *testing.T) {
		s, _ := newSubmissionClient(t, 5*time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{
				Result:        5,
				Notifications: []interface{}{tests.ExtrinsicUpdate(5, "ready")},
			}
		})

		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)

		event, err := s.AwaitNotification(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, event.SubscriptionId)
		assert.Equal(t, types.TransactionStatusReady, event.Status)
	})

	t.Run("skips other subscriptions and malformed frames", func(t *testing.T) {
		s, _ := newSubmissionClient(t, 5*time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{
				Result: 5,
				Notifications: []interface{}{
					tests.ExtrinsicUpdate(4, "ready"),
					map[string]interface{}{"jsonrpc": "2.0", "method": "author_extrinsicUpdate"},
					tests.ExtrinsicUpdate(5, map[string]string{"inBlock": "0x01"}),
				},
			}
		})

		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)

		event, err := s.AwaitNotification(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, types.TransactionStatusInBlock, event.Status)
		assert.Equal(t, "0x01", event.BlockHash)
	})

	t.Run("times out", func(t *testing.T) {
		s, _ := newSubmissionClient(t, 100*time.Millisecond, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: 5}
		})

		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)

		start := time.Now()
		_, err = s.AwaitNotification(context.Background(), id)
		require.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("context deadline is a timeout", func(t *testing.T) {
		s, _ := newSubmissionClient(t, 0, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: 5}
		})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := s.AwaitNotification(ctx, 5)
		require.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("cancellation is not a timeout", func(t *testing.T) {
		s, _ := newSubmissionClient(t, 0, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: 5}
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.AwaitNotification(ctx, 5)
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	})
}

func Test_Watch(t *testing.T) {
	t.Run("streams until terminal status", func(t *testing.T) {
		s, node := newSubmissionClient(t, 5*time.Second, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{
				Result: 8,
				Notifications: []interface{}{
					tests.ExtrinsicUpdate(8, "ready"),
					tests.ExtrinsicUpdate(8, map[string][]string{"broadcast": {"peer"}}),
					tests.ExtrinsicUpdate(8, map[string]string{"inBlock": "0x02"}),
					tests.ExtrinsicUpdate(8, map[string]string{"finalized": "0x02"}),
				},
			}
		})

		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)

		events, errCh := s.Watch(context.Background(), id)
		var statuses []types.TransactionStatus
		for event := range events {
			statuses = append(statuses, event.Status)
		}
		require.NoError(t, <-errCh)
		assert.Equal(t, []types.TransactionStatus{
			types.TransactionStatusReady,
			types.TransactionStatusBroadcast,
			types.TransactionStatusInBlock,
			types.TransactionStatusFinalized,
		}, statuses)

		// updates after the terminal status are not consumed by the watcher
		node.Push(tests.ExtrinsicUpdate(8, "ready"))
	})

	t.Run("reports timeout", func(t *testing.T) {
		s, _ := newSubmissionClient(t, 200*time.Millisecond, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{
				Result:        8,
				Notifications: []interface{}{tests.ExtrinsicUpdate(8, "ready")},
			}
		})

		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)

		events, errCh := s.Watch(context.Background(), id)
		var count int
		for range events {
			count++
		}
		assert.Equal(t, 1, count)
		require.ErrorIs(t, <-errCh, ErrTimeout)
	})
}

func Test_ConnectionLoss(t *testing.T) {
	t.Run("ends AwaitNotification without a wait timeout", func(t *testing.T) {
		s, node := newSubmissionClient(t, 0, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: 3}
		})
		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)

		node.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = s.AwaitNotification(ctx, id)
		require.ErrorIs(t, err, ErrStreamClosed)
		assert.ErrorIs(t, err, transport.ErrClosed)
		assert.NotErrorIs(t, err, ErrTimeout)
	})

	t.Run("ends Watch", func(t *testing.T) {
		s, node := newSubmissionClient(t, 0, func(method string, params []json.RawMessage) *tests.MockResponse {
			return &tests.MockResponse{Result: 4}
		})
		id, err := s.Submit(context.Background(), testExtrinsicHex)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events, errCh := s.Watch(ctx, id)

		node.Close()

		for range events {
		}
		require.ErrorIs(t, <-errCh, ErrStreamClosed)
	})
}
