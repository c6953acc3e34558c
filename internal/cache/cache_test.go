package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"SessionChat/internal/session"
)

type countingBackend struct {
	calls int
	reply string
	err   error
}

func (c *countingBackend) Name() string { return "counting" }

func (c *countingBackend) Reply(ctx context.Context, messages []session.Message) (string, error) {
	c.calls++
	return c.reply, c.err
}

func TestGenerateCacheKey(t *testing.T) {
	now := time.Now()
	a := []session.Message{session.NewUserMessage("hi", now)}
	b := []session.Message{session.NewUserMessage("hi", now.Add(time.Hour))}
	c := []session.Message{session.NewAssistantMessage("hi", now)}

	if GenerateCacheKey(a) != GenerateCacheKey(b) {
		t.Error("timestamps must not affect the key")
	}
	if GenerateCacheKey(a) == GenerateCacheKey(c) {
		t.Error("role must affect the key")
	}
}

func TestBackend_CachesReplies(t *testing.T) {
	next := &countingBackend{reply: "cached!"}
	b := Wrap(next, 0, nil)
	msgs := []session.Message{session.NewUserMessage("hello", time.Now())}

	for i := 0; i < 3; i++ {
		got, err := b.Reply(context.Background(), msgs)
		if err != nil {
			t.Fatalf("Reply() error = %v", err)
		}
		if got != "cached!" {
			t.Errorf("Reply() = %q", got)
		}
	}
	if next.calls != 1 {
		t.Errorf("wrapped backend called %d times, want 1", next.calls)
	}
	if b.Name() != "counting" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestBackend_DoesNotCacheErrors(t *testing.T) {
	next := &countingBackend{err: errors.New("down")}
	b := Wrap(next, 0, nil)
	msgs := []session.Message{session.NewUserMessage("hello", time.Now())}

	for i := 0; i < 2; i++ {
		if _, err := b.Reply(context.Background(), msgs); err == nil {
			t.Fatal("Reply() expected error")
		}
	}
	if next.calls != 2 {
		t.Errorf("wrapped backend called %d times, want 2", next.calls)
	}
}

func TestBackend_TTLExpiry(t *testing.T) {
	next := &countingBackend{reply: "r"}
	b := Wrap(next, time.Minute, nil)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	msgs := []session.Message{session.NewUserMessage("hello", clock)}

	b.Reply(context.Background(), msgs)
	clock = clock.Add(30 * time.Second)
	b.Reply(context.Background(), msgs)
	if next.calls != 1 {
		t.Fatalf("calls = %d before expiry, want 1", next.calls)
	}

	clock = clock.Add(2 * time.Minute)
	b.Reply(context.Background(), msgs)
	if next.calls != 2 {
		t.Errorf("calls = %d after expiry, want 2", next.calls)
	}
}

func prompt(text string) []session.Message {
	return []session.Message{session.NewUserMessage(text, time.Time{})}
}

func TestBackend_StoreSweepsExpired(t *testing.T) {
	b := Wrap(&countingBackend{reply: "r"}, time.Minute, nil)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Reply(ctx, prompt(fmt.Sprintf("old %d", i)))
	}
	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}

	clock = clock.Add(2 * time.Minute)
	b.Reply(ctx, prompt("new"))

	if b.Len() != 1 {
		t.Errorf("Len() = %d after storing past the ttl, want 1", b.Len())
	}
	if _, ok := b.entries[GenerateCacheKey(prompt("new"))]; !ok {
		t.Error("fresh reply was evicted")
	}
}

func TestBackend_Capacity(t *testing.T) {
	next := &countingBackend{reply: "r"}
	b := Wrap(next, 0, nil)
	b.maxEntries = 3
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Reply(ctx, prompt(fmt.Sprintf("q%d", i)))
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}

	// q2..q4 are held, q0 was pushed out
	b.Reply(ctx, prompt("q4"))
	if next.calls != 5 {
		t.Errorf("calls = %d, want newest entry served from cache", next.calls)
	}
	b.Reply(ctx, prompt("q0"))
	if next.calls != 6 {
		t.Errorf("calls = %d, want oldest entry evicted", next.calls)
	}
}

func TestBackend_RestoreRefreshesAge(t *testing.T) {
	next := &countingBackend{reply: "r"}
	b := Wrap(next, time.Minute, nil)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	b.Reply(ctx, prompt("a"))
	b.Reply(ctx, prompt("b"))
	clock = clock.Add(2 * time.Minute)
	b.Reply(ctx, prompt("a")) // expired, fetched and stored again

	if b.Len() != 1 || len(b.order) != 1 {
		t.Errorf("Len() = %d, order = %d, want only the refreshed entry", b.Len(), len(b.order))
	}
}
