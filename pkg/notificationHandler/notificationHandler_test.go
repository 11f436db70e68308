package notificationHandler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Test_NotificationHandler(t *testing.T) {
	t.Run("DeliversInOrder", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		h := NewNotificationHandler(logger, 10)

		sent := []string{"a", "b", "c"}
		for _, s := range sent {
			require.NoError(t, h.HandleNotification(context.Background(), []byte(s)))
		}

		var received []string
		for range sent {
			received = append(received, string(<-h.Notifications()))
		}
		assert.Equal(t, sent, received)
	})

	t.Run("DropsWhenFull", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		h := NewNotificationHandler(logger, 2)

		for i := 0; i < 5; i++ {
			require.NoError(t, h.HandleNotification(context.Background(), []byte(fmt.Sprintf("%d", i))))
		}

		assert.Len(t, h.NotificationChannel, 2)
		assert.Equal(t, "0", string(<-h.Notifications()))
		assert.Equal(t, "1", string(<-h.Notifications()))
	})

	t.Run("DefaultCapacity", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		h := NewNotificationHandler(logger, 0)
		assert.Equal(t, 100, cap(h.NotificationChannel))
	})

	t.Run("CloseDrainsBufferedFrames", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		h := NewNotificationHandler(logger, 4)
		cause := errors.New("connection lost")

		require.NoError(t, h.HandleNotification(context.Background(), []byte("last")))
		assert.NoError(t, h.Err())

		h.HandleClose(cause)
		h.HandleClose(errors.New("second close is ignored"))

		msg, ok := <-h.Notifications()
		require.True(t, ok)
		assert.Equal(t, "last", string(msg))

		_, ok = <-h.Notifications()
		assert.False(t, ok)
		assert.Equal(t, cause, h.Err())
	})
}
