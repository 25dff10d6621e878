package fiora

import (
	"fmt"
	"testing"

	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
)

func ids(msgs []model.Message) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += ","
		}
		out += m.ID
	}
	return out
}

func TestMessageCacheAppendPreservesOrder(t *testing.T) {
	cache := NewMessageCache()

	if got := cache.Messages("g1"); got == nil || len(got) != 0 {
		t.Fatalf("unseen conversation must be empty, got %v", got)
	}

	for i := 0; i < 50; i++ {
		if !cache.Append("g1", model.Message{ID: fmt.Sprint(i)}) {
			t.Fatalf("append %d was held without a pending fetch", i)
		}
	}

	got := cache.Messages("g1")
	if len(got) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(got))
	}
	for i, m := range got {
		if m.ID != fmt.Sprint(i) {
			t.Fatalf("message %d has id %s", i, m.ID)
		}
	}
}

func TestMessageCacheSnapshotIsCopy(t *testing.T) {
	cache := NewMessageCache()
	cache.Append("g1", model.Message{ID: "a"})

	snap := cache.Messages("g1")
	snap[0].ID = "mutated"

	if got := cache.Messages("g1"); got[0].ID != "a" {
		t.Fatalf("snapshot mutation leaked into cache: %s", got[0].ID)
	}
}

func TestMessageCacheHistoryPrepends(t *testing.T) {
	cache := NewMessageCache()
	cache.Append("g1", model.Message{ID: "live"})

	released := cache.CompleteHistory("g1", []model.Message{{ID: "h1"}, {ID: "h2"}})
	if len(released) != 0 {
		t.Fatalf("nothing was held, got %v", released)
	}
	if got := ids(cache.Messages("g1")); got != "h1,h2,live" {
		t.Fatalf("unexpected order: %s", got)
	}
}

func TestMessageCacheHistorySkipsCachedIDs(t *testing.T) {
	cache := NewMessageCache()
	cache.CompleteHistory("g1", []model.Message{{ID: "h1"}, {ID: "h2"}})
	cache.Append("g1", model.Message{ID: "live"})

	cache.BeginHistory([]string{"g1"})
	cache.Append("g1", model.Message{ID: "held"})
	released := cache.CompleteHistory("g1", []model.Message{{ID: "h0"}, {ID: "h1"}, {ID: "h2"}, {ID: "live"}, {ID: "held"}})

	if got := ids(released); got != "held" {
		t.Fatalf("unexpected released messages: %s", got)
	}
	if got := ids(cache.Messages("g1")); got != "h0,h1,h2,live,held" {
		t.Fatalf("unexpected order: %s", got)
	}
}

func TestMessageCacheHoldsLiveDuringHistory(t *testing.T) {
	cache := NewMessageCache()
	cache.BeginHistory([]string{"g1", "g2"})

	if cache.Append("g1", model.Message{ID: "p1"}) {
		t.Fatal("push must be held while history loads")
	}
	if cache.Append("g1", model.Message{ID: "p2"}) {
		t.Fatal("push must be held while history loads")
	}
	if !cache.Append("g3", model.Message{ID: "other"}) {
		t.Fatal("unrelated conversation must not be held")
	}

	released := cache.CompleteHistory("g1", []model.Message{{ID: "h1"}})
	if ids(released) != "p1,p2" {
		t.Fatalf("unexpected release: %s", ids(released))
	}
	if got := ids(cache.Messages("g1")); got != "h1,p1,p2" {
		t.Fatalf("unexpected order: %s", got)
	}

	// g2 仍在加载
	if cache.Append("g2", model.Message{ID: "q"}) {
		t.Fatal("g2 is still loading")
	}
	cache.CompleteHistory("g2", nil)
	if got := ids(cache.Messages("g2")); got != "q" {
		t.Fatalf("unexpected g2: %s", got)
	}
}

func TestMessageCacheOverlappingFetches(t *testing.T) {
	cache := NewMessageCache()
	cache.BeginHistory([]string{"g1"})
	cache.BeginHistory([]string{"g1"})
	cache.Append("g1", model.Message{ID: "p"})

	if released := cache.CompleteHistory("g1", []model.Message{{ID: "h"}}); len(released) != 0 {
		t.Fatalf("second fetch still pending, got %v", ids(released))
	}
	if released := cache.CompleteHistory("g1", nil); ids(released) != "p" {
		t.Fatalf("unexpected release: %s", ids(released))
	}
	if got := ids(cache.Messages("g1")); got != "h,p" {
		t.Fatalf("unexpected order: %s", got)
	}
}

func TestMessageCacheUnread(t *testing.T) {
	cache := NewMessageCache()

	cache.SetUnread("g1", 4)
	cache.AddUnread("g1", 1)
	if n := cache.Unread("g1"); n != 5 {
		t.Fatalf("expected 5 unread, got %d", n)
	}

	cache.MarkRead("g1")
	if n := cache.Unread("g1"); n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}

	cache.SetUnread("g2", 0)
	if n := cache.Unread("g2"); n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}
}
