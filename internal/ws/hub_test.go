package ws

import (
	"fmt"
	"testing"
	"time"
)

const testConv = "11111111-1111-1111-1111-111111111111"

func newTestClient(h *Hub, userID uint) *Client {
	return &Client{
		hub:    h,
		userID: userID,
		uname:  fmt.Sprintf("user%d", userID),
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		rooms:  make(map[string]*RoomHub),
	}
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no event delivered")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected event delivered: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	c1 := newTestClient(hub, 1)
	c2 := newTestClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)
	if got := hub.SessionCount(1); got != 2 {
		t.Fatalf("SessionCount(1) = %d, want 2", got)
	}

	hub.Unregister(c1)
	if got := hub.SessionCount(1); got != 1 {
		t.Fatalf("SessionCount(1) after unregister = %d, want 1", got)
	}
	hub.Unregister(c2)
	if got := hub.SessionCount(1); got != 0 {
		t.Fatalf("SessionCount(1) after last unregister = %d, want 0", got)
	}
}

func TestHub_BroadcastScoping(t *testing.T) {
	hub := NewHub()
	// members A(1) and B(2) subscribed, C(3) connected but not a subscriber
	a1 := newTestClient(hub, 1)
	a2 := newTestClient(hub, 1)
	b := newTestClient(hub, 2)
	c := newTestClient(hub, 3)
	for _, cl := range []*Client{a1, a2, b, c} {
		hub.Register(cl)
	}
	hub.JoinRoom(a1, testConv)
	hub.JoinRoom(a2, testConv)
	hub.JoinRoom(b, testConv)
	time.Sleep(10 * time.Millisecond)

	event := []byte(`{"type":"new_message"}`)
	hub.BroadcastToConversation(testConv, event)

	for _, cl := range []*Client{a1, a2, b} {
		if got := recv(t, cl); string(got) != string(event) {
			t.Fatalf("delivered = %s, want %s", got, event)
		}
	}
	assertSilent(t, c)
}

func TestHub_BroadcastOrderWithinRoom(t *testing.T) {
	hub := NewHub()
	cl := newTestClient(hub, 1)
	hub.Register(cl)
	hub.JoinRoom(cl, testConv)
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 10; i++ {
		hub.BroadcastToConversation(testConv, []byte(fmt.Sprintf("e%d", i)))
	}
	for i := 0; i < 10; i++ {
		if got := recv(t, cl); string(got) != fmt.Sprintf("e%d", i) {
			t.Fatalf("event %d out of order: got %s", i, got)
		}
	}
}

func TestHub_UnicastToUser(t *testing.T) {
	hub := NewHub()
	b1 := newTestClient(hub, 2)
	b2 := newTestClient(hub, 2)
	other := newTestClient(hub, 3)
	for _, cl := range []*Client{b1, b2, other} {
		hub.Register(cl)
	}

	event := []byte(`{"type":"webrtc_signal"}`)
	hub.UnicastToUser(2, event)

	for _, cl := range []*Client{b1, b2} {
		if got := recv(t, cl); string(got) != string(event) {
			t.Fatalf("delivered = %s, want %s", got, event)
		}
	}
	assertSilent(t, other)
}

func TestHub_UnicastToOfflineUserIsNoop(t *testing.T) {
	hub := NewHub()
	hub.UnicastToUser(42, []byte("x")) // must not panic or block
}

func TestHub_LeaveRoomStopsDelivery(t *testing.T) {
	hub := NewHub()
	cl := newTestClient(hub, 1)
	hub.Register(cl)
	hub.JoinRoom(cl, testConv)
	time.Sleep(10 * time.Millisecond)

	hub.LeaveRoom(cl, testConv)
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToConversation(testConv, []byte("after-leave"))
	assertSilent(t, cl)
}

func TestHub_UnregisterLeavesAllRooms(t *testing.T) {
	hub := NewHub()
	stay := newTestClient(hub, 1)
	gone := newTestClient(hub, 2)
	hub.Register(stay)
	hub.Register(gone)
	hub.JoinRoom(stay, testConv)
	hub.JoinRoom(gone, testConv)
	time.Sleep(10 * time.Millisecond)

	hub.Unregister(gone)
	time.Sleep(10 * time.Millisecond)
	if got := hub.Online(testConv); got != 1 {
		t.Fatalf("Online() after unregister = %d, want 1", got)
	}

	hub.BroadcastToConversation(testConv, []byte("still-flowing"))
	recv(t, stay)
}

func TestHub_OfflineHookFiresOnLastSession(t *testing.T) {
	hub := NewHub()
	fired := make(chan uint, 2)
	hub.OnUserOffline(func(userID uint) { fired <- userID })

	c1 := newTestClient(hub, 7)
	c2 := newTestClient(hub, 7)
	hub.Register(c1)
	hub.Register(c2)

	hub.Unregister(c1)
	select {
	case id := <-fired:
		t.Fatalf("hook fired with sessions remaining (user %d)", id)
	case <-time.After(50 * time.Millisecond):
	}

	hub.Unregister(c2)
	select {
	case id := <-fired:
		if id != 7 {
			t.Fatalf("hook user = %d, want 7", id)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("hook did not fire on last unregister")
	}
}

func TestHub_SlowClientDropsNotBlocks(t *testing.T) {
	hub := NewHub()
	cl := newTestClient(hub, 1)
	cl.send = make(chan []byte, 1) // tiny buffer
	hub.Register(cl)
	hub.JoinRoom(cl, testConv)
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			hub.BroadcastToConversation(testConv, []byte("burst"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}
