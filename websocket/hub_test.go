package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/messaging/notifications"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written []notifications.Event
	closed  bool
	fail    bool
	// stall, when set, blocks every write until Close.
	stall chan struct{}
}

func (f *fakeConn) WriteJSON(v any) error {
	if f.stall != nil {
		<-f.stall
		return errors.New("use of closed connection")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, v.(notifications.Event))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed && f.stall != nil {
		close(f.stall)
	}
	f.closed = true
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(slog.Default(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub, cancel
}

func Test_Hub_Delivers_To_Recipients_Only(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)

	alice, aliceTab, bob, carol := &fakeConn{}, &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register(&Client{UserID: "alice", Conn: alice})
	hub.Register(&Client{UserID: "alice", Conn: aliceTab})
	hub.Register(&Client{UserID: "bob", Conn: bob})
	hub.Register(&Client{UserID: "carol", Conn: carol})

	hub.Publish(context.Background(), notifications.NewEvent(notifications.EventNewMessage, "alice_bob", []string{"alice", "bob"}, nil))

	req.Eventually(func() bool {
		return alice.count() == 1 && aliceTab.count() == 1 && bob.count() == 1
	}, time.Second, 5*time.Millisecond)
	req.Zero(carol.count())
}

func Test_Hub_Drops_Broken_Connections(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)

	broken := &fakeConn{fail: true}
	hub.Register(&Client{UserID: "bob", Conn: broken})
	hub.Publish(context.Background(), notifications.NewEvent(notifications.EventConversationRead, "a_bob", []string{"bob"}, nil))

	req.Eventually(broken.isClosed, time.Second, 5*time.Millisecond)

	healthy := &fakeConn{}
	hub.Register(&Client{UserID: "bob", Conn: healthy})
	hub.Publish(context.Background(), notifications.NewEvent(notifications.EventConversationRead, "a_bob", []string{"bob"}, nil))
	req.Eventually(func() bool { return healthy.count() == 1 }, time.Second, 5*time.Millisecond)
}

func Test_Hub_Unregister_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)

	conn, watcher := &fakeConn{}, &fakeConn{}
	client := &Client{UserID: "bob", Conn: conn}
	hub.Register(client)
	hub.Register(&Client{UserID: "watcher", Conn: watcher})
	hub.Unregister(client)
	hub.Publish(context.Background(), notifications.NewEvent(notifications.EventNewMessage, "a_bob", []string{"bob", "watcher"}, nil))

	req.Eventually(func() bool { return watcher.count() == 1 }, time.Second, 5*time.Millisecond)
	req.Zero(conn.count())
}

func Test_Hub_Publish_After_Stop_Does_Not_Block(t *testing.T) {
	hub, cancel := startHub(t)
	conn := &fakeConn{}
	hub.Register(&Client{UserID: "bob", Conn: conn})
	cancel()
	<-hub.Done()

	require.True(t, conn.isClosed())
	for range 100 {
		hub.Publish(context.Background(), notifications.NewEvent(notifications.EventNewMessage, "a_bob", []string{"bob"}, nil))
	}
	hub.Register(&Client{UserID: "late", Conn: &fakeConn{}})
}

func Test_Hub_Stalled_Client_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	hub, _ := startHub(t)

	stalled, alice := &fakeConn{stall: make(chan struct{})}, &fakeConn{}
	hub.Register(&Client{UserID: "bob", Conn: stalled})
	hub.Register(&Client{UserID: "alice", Conn: alice})

	const events = clientBuffer + 8
	for i := range events {
		hub.Publish(context.Background(), notifications.NewEvent(notifications.EventNewMessage, "alice_bob", []string{"bob", "alice"}, nil))
		req.Eventually(func() bool { return alice.count() == i+1 }, time.Second, time.Millisecond)
	}

	req.Eventually(stalled.isClosed, time.Second, 5*time.Millisecond)
	req.Equal(events, alice.count())
}
