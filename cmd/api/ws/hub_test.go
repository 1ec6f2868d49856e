package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPublishEvent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, eventsChannel)
	defer sub.Close()
	ch := sub.Channel()

	ev := Event{Type: "update_approved", AssetID: "a1", Data: map[string]string{"billNo": "INV-1"}}
	PublishEvent(ctx, rdb, ev)

	msg := <-ch
	var got Event
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != ev.Type || got.AssetID != "a1" {
		t.Fatalf("want %s/a1 got %s/%s", ev.Type, got.Type, got.AssetID)
	}
}

func TestDeliverFiltersAdminOnly(t *testing.T) {
	h := NewHub(nil)
	admin := &Client{send: make(chan Event, 2), isAdmin: true}
	officer := &Client{send: make(chan Event, 1)}
	h.clients[admin] = true
	h.clients[officer] = true

	h.deliver(Event{Type: "update_requested", AssetID: "a1"})
	if len(admin.send) != 1 {
		t.Fatal("admin should receive pending-queue events")
	}
	if len(officer.send) != 0 {
		t.Fatal("officer should not receive pending-queue events")
	}

	h.deliver(Event{Type: "announcement"})
	if len(admin.send) != 2 || len(officer.send) != 1 {
		t.Fatalf("announcement should reach everyone: admin=%d officer=%d", len(admin.send), len(officer.send))
	}
}

func TestDeliverDropsSlowClient(t *testing.T) {
	h := NewHub(nil)
	slow := &Client{send: make(chan Event)} // unbuffered, never read
	h.clients[slow] = true

	h.deliver(Event{Type: "announcement"})
	if _, ok := h.clients[slow]; ok {
		t.Fatal("slow client should be dropped")
	}
	if _, open := <-slow.send; open {
		t.Fatal("dropped client's send channel should be closed")
	}
}
