package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"qtrader/internal/wire"
)

// DefaultTimeout is the default per-request timeout (spec: 10s).
const DefaultTimeout = 10 * time.Second

// TrivialTimeout is used for cheap queries (spec: 5s).
const TrivialTimeout = 5 * time.Second

// ConnectTimeout is used for connect/init flows (spec: 30s).
const ConnectTimeout = 30 * time.Second

// HeartbeatInterval is how often the client emits heartbeat frames.
const HeartbeatInterval = 10 * time.Second

// PushHandler observes an unsolicited push frame forwarded by the
// server, e.g. to republish it on the Manager's own event bus.
type PushHandler func(msgType string, data json.RawMessage)

// Client is a request/response mux over one Unix socket connection to a
// Trader's IPC server: it demultiplexes response frames to the awaiting
// caller by request_id and hands push/heartbeat frames to callbacks.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan wire.Frame

	onPush      PushHandler
	onHeartbeat func()

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to socketPath and starts the client's read loop.
func Dial(socketPath string, onPush PushHandler, onHeartbeat func()) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", socketPath, err)
	}
	c := &Client{
		conn:        conn,
		pending:     make(map[string]chan wire.Frame),
		onPush:      onPush,
		onHeartbeat: onHeartbeat,
		closed:      make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	c.wg.Add(1)
	go c.heartbeatLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	reader := wire.NewReader(c.conn)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			c.failAllPending()
			return
		}
		switch frame.Type {
		case wire.FrameResponse:
			c.routeResponse(frame)
		case wire.FramePush:
			if c.onPush != nil {
				c.onPush(frame.MsgType, frame.Data)
			}
		case wire.FrameHeartbeat:
			if c.onHeartbeat != nil {
				c.onHeartbeat()
			}
		}
	}
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			frame := wire.NewHeartbeat(time.Now().UTC().Format(time.RFC3339))
			c.writeMu.Lock()
			err := wire.WriteFrame(c.conn, frame)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) routeResponse(frame wire.Frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[frame.RequestID]
	if ok {
		delete(c.pending, frame.RequestID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- frame
	}
}

func (c *Client) failAllPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Request sends a request_type/data request and blocks for the matching
// response, a timeout, or ctx cancellation.
func (c *Client) Request(ctx context.Context, requestType string, data any, timeout time.Duration) (json.RawMessage, error) {
	requestID := uuid.NewString()
	frame, err := wire.NewRequest(requestID, requestType, data)
	if err != nil {
		return nil, err
	}

	ch := make(chan wire.Frame, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err = wire.WriteFrame(c.conn, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("ipc: write request %s: %w", requestType, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("ipc: connection closed while awaiting %s", requestType)
		}
		if resp.Success != nil && !*resp.Success {
			return nil, fmt.Errorf("ipc: request %s failed: %s", requestType, resp.Error)
		}
		return resp.Data, nil
	case <-timer.C:
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("ipc: request %s timed out after %s", requestType, timeout)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// Close tears down the connection and releases any pending requests.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.wg.Wait()
		c.failAllPending()
	})
	return err
}
