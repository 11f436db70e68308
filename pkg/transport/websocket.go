package transport

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"
)

const (
	wssPrefix         = "wss://"
	closeWriteTimeout = time.Second
)

// Connection is a message-oriented duplex stream to the node
type Connection interface {
	Receive() ([]byte, error)
	Send(msg []byte) error
	Close() error
}

// Dialer opens Connections; swapped out in tests
type Dialer interface {
	DialContext(ctx context.Context, url string) (Connection, error)
}

var _ Dialer = (*websocketDialer)(nil)
var _ Connection = (*websocketConn)(nil)

type websocketDialer struct{}

// NewWebsocketDialer creates a Dialer backed by the gorilla websocket implementation
func NewWebsocketDialer() Dialer {
	return &websocketDialer{}
}

func (d *websocketDialer) DialContext(ctx context.Context, url string) (Connection, error) {
	dialer := *gorillaws.DefaultDialer
	if strings.HasPrefix(url, wssPrefix) {
		dialer.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *gorillaws.Conn
}

func (w *websocketConn) Receive() ([]byte, error) {
	_, msg, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (w *websocketConn) Send(msg []byte) error {
	// JSON-RPC payloads are UTF-8 text frames
	return w.conn.WriteMessage(gorillaws.TextMessage, msg)
}

func (w *websocketConn) Close() error {
	_ = w.conn.WriteControl(
		gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout),
	)
	return w.conn.Close()
}
