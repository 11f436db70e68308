package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrClosed        = errors.New("transport closed")
	ErrInvalidResult = errors.New("rpc result does not match the expected type")
)

// RetryConfig configures retry behavior of the initial dial. Requests themselves are
// never retried: a resubmitted extrinsic could be applied twice.
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// INotificationSink receives every inbound frame that is not a response to a request.
// HandleClose is called once by the reader after the last frame, with the reason the
// connection ended.
type INotificationSink interface {
	HandleNotification(ctx context.Context, msg []byte) error
	HandleClose(err error)
}

type ClientConfig struct {
	URL         string
	RetryConfig *RetryConfig

	// RequestsPerSecond paces outgoing requests; zero disables pacing
	RequestsPerSecond float64

	// Dialer defaults to the websocket dialer
	Dialer Dialer

	// NotificationSink receives push messages; when nil they are logged and dropped
	NotificationSink INotificationSink
}

// Client is a JSON-RPC client over one persistent connection. A single reader
// goroutine correlates responses with pending calls by id and forwards everything
// else to the notification sink.
type Client struct {
	conn    Connection
	logger  *zap.Logger
	limiter *rate.Limiter
	sink    INotificationSink

	nextID  atomic.Uint64
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[uint64]chan *rpcMessage
	closed    bool
	closeErr  error
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the node, retrying the dial with exponential backoff
func Dial(ctx context.Context, cfg *ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewWebsocketDialer()
	}
	retryConfig := DefaultRetryConfig
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}

	var conn Connection
	var err error
	backoff := retryConfig.InitialBackoff
	for attempt := 0; attempt < retryConfig.MaxAttempts; attempt++ {
		conn, err = dialer.DialContext(ctx, cfg.URL)
		if err == nil {
			break
		}
		logger.Sugar().Warnw("Failed to dial node",
			"url", cfg.URL,
			"attempt", attempt+1,
			"error", err,
		)

		if attempt < retryConfig.MaxAttempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "dial aborted")
			}
			backoff = time.Duration(float64(backoff) * retryConfig.BackoffMultiple)
			if backoff > retryConfig.MaxBackoff {
				backoff = retryConfig.MaxBackoff
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s after %d attempts: %w", cfg.URL, retryConfig.MaxAttempts, err)
	}

	c := NewClientFromConnection(conn, cfg, logger)
	logger.Sugar().Infow("Connected to node", "url", cfg.URL)
	return c, nil
}

// NewClientFromConnection wraps an already established connection and starts the reader
func NewClientFromConnection(conn Connection, cfg *ClientConfig, logger *zap.Logger) *Client {
	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]chan *rpcMessage),
		done:    make(chan struct{}),
	}
	if cfg != nil {
		c.sink = cfg.NotificationSink
		if cfg.RequestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
		}
	}

	go c.readLoop()
	return c
}

// Call issues method with params and blocks until the matching response arrives, the
// context ends or the connection fails. A node error object is returned as *RPCError.
// result may be nil to discard the response, or a *json.RawMessage to keep it verbatim.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrapf(err, "rate limiter wait for %s", method)
		}
	}
	if params == nil {
		params = []interface{}{}
	}

	id := c.nextID.Add(1)
	respCh := make(chan *rpcMessage, 1)

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(&rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	c.logger.Sugar().Debugw("Sending rpc request", "id", id, "method", method)

	c.writeMu.Lock()
	err = c.conn.Send(data)
	c.writeMu.Unlock()
	if err != nil {
		return errors.Wrapf(ErrClosed, "failed to send %s: %v", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil {
			return nil
		}
		if raw, ok := result.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], resp.Result...)
			return nil
		}
		if len(resp.Result) == 0 {
			return errors.Wrapf(ErrInvalidResult, "%s: response has neither result nor error", method)
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return errors.Wrapf(ErrInvalidResult, "%s: %v", method, err)
		}
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for %s response", method)
	case <-c.done:
		c.mu.Lock()
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
}

// Close shuts the connection; pending and future calls fail with ErrClosed
func (c *Client) Close() error {
	c.markClosed(ErrClosed)

	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Client) markClosed(cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.closeErr = cause
	close(c.done)
	return true
}

func (c *Client) readLoop() {
	for {
		data, err := c.conn.Receive()
		if err != nil {
			if c.markClosed(errors.Wrapf(ErrClosed, "connection lost: %v", err)) {
				c.logger.Sugar().Warnw("Node connection lost", "error", err)
			}
			if c.sink != nil {
				c.sink.HandleClose(c.Err())
			}
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Sugar().Warnw("Dropping unparseable frame", "error", err, "frame", string(data))
			continue
		}

		if msg.isNotification() {
			c.dispatchNotification(data)
			continue
		}

		id, err := strconv.ParseUint(string(msg.ID), 10, 64)
		if err != nil {
			c.logger.Sugar().Warnw("Dropping response with unexpected id", "id", string(msg.ID))
			continue
		}

		c.mu.Lock()
		respCh, ok := c.pending[id]
		c.mu.Unlock()
		if !ok {
			c.logger.Sugar().Debugw("Dropping response for unknown request", "id", id)
			continue
		}
		select {
		case respCh <- &msg:
		default:
			c.logger.Sugar().Warnw("Dropping duplicate response", "id", id)
		}
	}
}

func (c *Client) dispatchNotification(data []byte) {
	if c.sink == nil {
		c.logger.Sugar().Debugw("Dropping notification, no sink configured", "frame", string(data))
		return
	}
	if err := c.sink.HandleNotification(context.Background(), data); err != nil {
		c.logger.Sugar().Warnw("Notification sink rejected message", "error", err)
	}
}
