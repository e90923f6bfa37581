package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// ErrConnClosed is returned for calls issued after the connection shut
// down, and delivered to callers waiting on a response when it does.
var ErrConnClosed = errors.New("gateway: connection closed")

type rpcRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("gateway: rpc error %d: %s", e.Code, e.Message)
}

// rpcMessage is either a response (ID set) or a live notification
// (no ID, Result carries the notification body).
type rpcMessage struct {
	ID     string          `json:"id,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type liveNotification struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Result map[string]any `json:"result"`
}

type queryResult struct {
	Status string           `json:"status"`
	Result []map[string]any `json:"result"`
	Detail string           `json:"detail,omitempty"`
}

type rpcResponse struct {
	result json.RawMessage
	err    error
}

// Client is a Conn over a websocket JSON-RPC endpoint. One reader
// goroutine owns the socket's receive side and dispatches responses to
// pending calls and notifications to live handlers.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan rpcResponse
	handlers map[string]LiveHandler
	// backlog holds notifications that raced ahead of their Live call
	// returning; drained when the handler registers.
	backlog map[string][]liveNotification
	closed  bool
}

var _ Conn = (*Client)(nil)

// Dial connects to the remote store's RPC endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial %s: %w", url, err)
	}
	c := &Client{
		conn:     conn,
		pending:  make(map[string]chan rpcResponse),
		handlers: make(map[string]LiveHandler),
		backlog:  make(map[string][]liveNotification),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var msg rpcMessage
		if err := wsjson.Read(context.Background(), c.conn, &msg); err != nil {
			c.shutdown()
			return
		}

		if msg.ID != "" {
			c.deliver(msg)
			continue
		}

		var note liveNotification
		if err := json.Unmarshal(msg.Result, &note); err != nil || note.ID == "" {
			continue
		}
		kind, ok := parseAction(note.Action)
		if !ok {
			continue
		}
		c.mu.Lock()
		fn := c.handlers[note.ID]
		if fn == nil && !c.closed {
			c.backlog[note.ID] = append(c.backlog[note.ID], note)
		}
		c.mu.Unlock()
		if fn != nil {
			fn(kind, note.Result)
		}
	}
}

func (c *Client) deliver(msg rpcMessage) {
	c.mu.Lock()
	ch := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if ch == nil {
		return
	}
	if msg.Error != nil {
		ch <- rpcResponse{err: msg.Error}
		return
	}
	ch <- rpcResponse{result: msg.Result}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- rpcResponse{err: ErrConnClosed}
	}
	c.handlers = make(map[string]LiveHandler)
	c.backlog = make(map[string][]liveNotification)
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{ID: id, Method: method, Params: params}
	if params == nil {
		req.Params = []any{}
	}

	c.writeMu.Lock()
	err := wsjson.Write(ctx, c.conn, req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("gateway: send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Use selects the namespace and database.
func (c *Client) Use(ctx context.Context, namespace, database string) error {
	_, err := c.call(ctx, "use", namespace, database)
	return err
}

// Signin authenticates with root-style user credentials.
func (c *Client) Signin(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, "signin", map[string]any{
		"user": username,
		"pass": password,
	})
	return err
}

// Query runs one statement and returns the rows of its first result.
func (c *Client) Query(ctx context.Context, statement string, vars map[string]any) ([]map[string]any, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	raw, err := c.call(ctx, "query", statement, vars)
	if err != nil {
		return nil, err
	}

	var results []queryResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("gateway: decode query result: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	first := results[0]
	if first.Status != "OK" {
		return nil, fmt.Errorf("gateway: query failed: %s %s", first.Status, first.Detail)
	}
	return first.Result, nil
}

// Live registers a table subscription and returns its handle. The
// handler runs on the reader goroutine; it must not block.
func (c *Client) Live(ctx context.Context, table string, fn LiveHandler) (string, error) {
	raw, err := c.call(ctx, "live", table)
	if err != nil {
		return "", err
	}
	var handle string
	if err := json.Unmarshal(raw, &handle); err != nil {
		return "", fmt.Errorf("gateway: decode live handle: %w", err)
	}

	c.mu.Lock()
	var missed []liveNotification
	if !c.closed {
		c.handlers[handle] = fn
		missed = c.backlog[handle]
		delete(c.backlog, handle)
	}
	c.mu.Unlock()

	for _, note := range missed {
		if kind, ok := parseAction(note.Action); ok {
			fn(kind, note.Result)
		}
	}
	return handle, nil
}

// Kill cancels a live subscription. The handler is removed even if the
// remote call fails; a dead handle must not keep delivering events.
func (c *Client) Kill(ctx context.Context, handle string) error {
	c.mu.Lock()
	delete(c.handlers, handle)
	delete(c.backlog, handle)
	c.mu.Unlock()

	_, err := c.call(ctx, "kill", handle)
	return err
}

// Close tears down the websocket. Pending calls fail with ErrConnClosed.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.shutdown()
	return err
}

func parseAction(action string) (EventKind, bool) {
	switch action {
	case "CREATE":
		return EventCreated, true
	case "UPDATE":
		return EventUpdated, true
	case "DELETE":
		return EventDeleted, true
	default:
		return 0, false
	}
}
