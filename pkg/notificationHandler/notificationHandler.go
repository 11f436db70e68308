package notificationHandler

import (
	"context"
	"sync"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transport"
	"go.uber.org/zap"
)

type INotificationHandler interface {
	transport.INotificationSink
	Notifications() <-chan []byte
	Err() error
}

var _ INotificationHandler = (*NotificationHandler)(nil)

// NotificationHandler buffers push frames from the transport reader so that a slow
// consumer never stalls response delivery. The channel is closed once the transport
// reports that the connection ended; frames already buffered are still delivered.
type NotificationHandler struct {
	NotificationChannel chan []byte
	logger              *zap.Logger

	mu        sync.Mutex
	closeErr  error
	closeOnce sync.Once
}

func NewNotificationHandler(
	logger *zap.Logger,
	capacity int,
) *NotificationHandler {
	if capacity <= 0 {
		capacity = 100
	}
	return &NotificationHandler{
		NotificationChannel: make(chan []byte, capacity),
		logger:              logger,
	}
}

func (h *NotificationHandler) Notifications() <-chan []byte {
	return h.NotificationChannel
}

// Err returns the reason the stream ended, or nil while it is open
func (h *NotificationHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeErr
}

// HandleNotification must not be called after HandleClose; the transport reader
// guarantees that ordering.
func (h *NotificationHandler) HandleNotification(ctx context.Context, msg []byte) error {
	select {
	case h.NotificationChannel <- msg:
		h.logger.Sugar().Debugw("Notification sent to channel", "bytes", len(msg))
	case <-ctx.Done():
		h.logger.Sugar().Warnw("Context done before sending notification to channel", "bytes", len(msg))
	default:
		h.logger.Sugar().Warnw("Notification channel is full, dropping notification", "frame", string(msg))
	}
	return nil
}

func (h *NotificationHandler) HandleClose(err error) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closeErr = err
		h.mu.Unlock()
		h.logger.Sugar().Debugw("Notification stream closed", "error", err)
		close(h.NotificationChannel)
	})
}
