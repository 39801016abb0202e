package ipc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qtrader/internal/eventbus"
	"qtrader/internal/model"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := t.TempDir() + "/qtrader_test.sock"
	bus := eventbus.New()
	bus.Start()
	t.Cleanup(bus.Stop)

	srv, err := NewServer(socketPath, bus)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	srv.RegisterHandler("ping", func(data json.RawMessage) (any, error) {
		return map[string]bool{"pong": true}, nil
	})
	srv.RegisterHandler("get_account", func(data json.RawMessage) (any, error) {
		return model.Account{AccountID: "acct-1", Balance: 1000}, nil
	})
	srv.RegisterHandler("order_req", func(data json.RawMessage) (any, error) {
		return "order-1", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Serve(ctx)
	return srv, socketPath
}

func TestClientRequestRoundTrips(t *testing.T) {
	_, socketPath := newTestServer(t)

	client, err := Dial(socketPath, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	raw, err := client.Request(context.Background(), "ping", struct{}{}, time.Second)
	require.NoError(t, err)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.True(t, resp["pong"])
}

func TestClientRequestUnknownTypeReturnsError(t *testing.T) {
	_, socketPath := newTestServer(t)
	client, err := Dial(socketPath, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Request(context.Background(), "bogus_request", struct{}{}, time.Second)
	require.Error(t, err)
}

func TestClientRequestDecodesTypedResponse(t *testing.T) {
	_, socketPath := newTestServer(t)
	client, err := Dial(socketPath, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	raw, err := client.Request(context.Background(), "get_account", struct{}{}, time.Second)
	require.NoError(t, err)
	var acct model.Account
	require.NoError(t, json.Unmarshal(raw, &acct))
	require.Equal(t, "acct-1", acct.AccountID)
	require.Equal(t, 1000.0, acct.Balance)
}

func TestSecondConnectionDisplacesFirst(t *testing.T) {
	_, socketPath := newTestServer(t)

	first, err := Dial(socketPath, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	second, err := Dial(socketPath, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	// The second connection displaces the first; the first's requests
	// now fail because its underlying socket has been closed server-side.
	require.Eventually(t, func() bool {
		_, err := first.Request(context.Background(), "ping", struct{}{}, 200*time.Millisecond)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)

	raw, err := second.Request(context.Background(), "ping", struct{}{}, time.Second)
	require.NoError(t, err)
	require.Contains(t, string(raw), "pong")
}

func TestPushFrameForwardedToClient(t *testing.T) {
	srv, socketPath := newTestServer(t)

	received := make(chan string, 1)
	client, err := Dial(socketPath, func(msgType string, data json.RawMessage) {
		received <- msgType
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	// Give the server a moment to register the new connection before
	// publishing, since Accept runs in its own goroutine.
	require.Eventually(t, func() bool {
		_, err := client.Request(context.Background(), "ping", struct{}{}, 200*time.Millisecond)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	srv.bus.Publish(eventbus.TopicOrderUpdate, model.Order{OrderID: "o1"})

	select {
	case msgType := <-received:
		require.Equal(t, "order", msgType)
	case <-time.After(time.Second):
		t.Fatal("push frame not received")
	}
}

func TestRequestTimesOutAgainstUnresponsiveHandler(t *testing.T) {
	socketPath := t.TempDir() + "/qtrader_slow.sock"
	bus := eventbus.New()
	bus.Start()
	t.Cleanup(bus.Stop)

	srv, err := NewServer(socketPath, bus)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	srv.RegisterHandler("slow", func(data json.RawMessage) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return "done", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Serve(ctx)

	client, err := Dial(socketPath, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Request(context.Background(), "slow", struct{}{}, 50*time.Millisecond)
	require.Error(t, err)
}
