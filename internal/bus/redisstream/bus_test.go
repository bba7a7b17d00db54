package redisstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b := New(mr.Addr(), 0, "chat:events", "archiver")
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestPublishAppendsToStream(t *testing.T) {
	b, mr := newTestBus(t)
	ctx := context.Background()
	if err := b.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	err := b.Publish(ctx, &Message{Type: TypeMessageStored, When: time.Now(), From: "alice", To: "bob", Text: "hi", Delivered: true})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	entries, err := mr.Stream("chat:events")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestConsumeDeliversPublished(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.EnsureGroup(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.EnsureGroup(ctx); err != nil {
		t.Fatalf("second EnsureGroup should be a no-op: %v", err)
	}
	_ = b.Publish(ctx, &Message{Type: TypeFileStored, From: "alice", To: "bob", Filename: "a.txt", Size: 3})

	got := make(chan *Message, 1)
	done := make(chan error, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	go func() {
		done <- b.Consume(consumeCtx, "c1", func(_ context.Context, m *Message) error {
			got <- m
			return nil
		})
	}()

	select {
	case m := <-got:
		if m.Type != TypeFileStored || m.Filename != "a.txt" || m.Size != 3 {
			t.Fatalf("unexpected event %+v", m)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	stop()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestConsumeRedeliversFailedEvent(t *testing.T) {
	b, _ := newTestBus(t)
	b.SetClaimIdle(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.EnsureGroup(ctx); err != nil {
		t.Fatal(err)
	}
	_ = b.Publish(ctx, &Message{Type: TypeMessageStored, From: "alice", To: "bob", Text: "hi"})

	got := make(chan *Message, 2)
	done := make(chan error, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	calls := 0
	go func() {
		done <- b.Consume(consumeCtx, "c1", func(_ context.Context, m *Message) error {
			calls++
			got <- m
			if calls == 1 {
				return errors.New("archive unavailable")
			}
			return nil
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case m := <-got:
			if m.Text != "hi" {
				t.Fatalf("delivery %d: unexpected event %+v", i+1, m)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for delivery %d", i+1)
		}
	}

	// 第二次成功后应被 ack
	for {
		p, err := b.cli.XPending(ctx, "chat:events", "archiver").Result()
		if err != nil {
			t.Fatal(err)
		}
		if p.Count == 0 {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("%d events still pending", p.Count)
		case <-time.After(10 * time.Millisecond):
		}
	}
	stop()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consume did not return after cancel")
	}
}
