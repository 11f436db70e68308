package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// MockRPCError mirrors a JSON-RPC error object
type MockRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MockResponse tells the mock node how to answer one request
type MockResponse struct {
	Result interface{}
	Error  *MockRPCError

	// Silent leaves the request unanswered
	Silent bool

	// Notifications are pushed on the same connection right after the response
	Notifications []interface{}
}

type MockHandler func(method string, params []json.RawMessage) *MockResponse

type MockRequest struct {
	Method string
	Params []json.RawMessage
}

// MockNode is an in-process websocket JSON-RPC node for tests
type MockNode struct {
	t       *testing.T
	server  *httptest.Server
	handler MockHandler

	mu       sync.Mutex
	conns    []*mockConn
	requests []MockRequest
}

type mockConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *mockConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func NewMockNode(t *testing.T, handler MockHandler) *MockNode {
	t.Helper()

	n := &MockNode{t: t, handler: handler}
	upgrader := websocket.Upgrader{}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("mock node upgrade failed: %v", err)
			return
		}
		mc := &mockConn{conn: conn}
		n.mu.Lock()
		n.conns = append(n.conns, mc)
		n.mu.Unlock()
		n.serve(mc)
	}))
	t.Cleanup(n.Close)
	return n
}

// URL returns the ws:// address of the node
func (n *MockNode) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

// Requests returns every request received so far
func (n *MockNode) Requests() []MockRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]MockRequest{}, n.requests...)
}

// Push sends an arbitrary frame to every connected client
func (n *MockNode) Push(v interface{}) {
	n.mu.Lock()
	conns := append([]*mockConn{}, n.conns...)
	n.mu.Unlock()
	for _, c := range conns {
		if err := c.writeJSON(v); err != nil {
			n.t.Logf("mock node push failed: %v", err)
		}
	}
}

func (n *MockNode) Close() {
	n.mu.Lock()
	for _, c := range n.conns {
		_ = c.conn.Close()
	}
	n.conns = nil
	n.mu.Unlock()
	n.server.Close()
}

func (n *MockNode) serve(c *mockConn) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			n.t.Logf("mock node received invalid frame: %s", string(data))
			continue
		}

		n.mu.Lock()
		n.requests = append(n.requests, MockRequest{Method: req.Method, Params: req.Params})
		n.mu.Unlock()

		resp := n.handler(req.Method, req.Params)
		if resp == nil {
			resp = &MockResponse{Error: &MockRPCError{Code: -32601, Message: "Method not found"}}
		}
		if resp.Silent {
			continue
		}

		frame := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if resp.Error != nil {
			frame["error"] = resp.Error
		} else {
			frame["result"] = resp.Result
		}
		if err := c.writeJSON(frame); err != nil {
			return
		}
		for _, notification := range resp.Notifications {
			if err := c.writeJSON(notification); err != nil {
				return
			}
		}
	}
}

// ExtrinsicUpdate builds an author_extrinsicUpdate push frame
func ExtrinsicUpdate(subscription interface{}, result interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "author_extrinsicUpdate",
		"params": map[string]interface{}{
			"subscription": subscription,
			"result":       result,
		},
	}
}
