package notify

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestHubPublishesAndLogs(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(log.New(&buf, "", 0))

	var got []Notice
	unsubscribe := hub.Notices().Subscribe(func(n Notice) { got = append(got, n) })

	hub.Error("你已经被关进小黑屋中, 请反思后再试")
	hub.Info("发送成功")
	hub.Info("")
	unsubscribe()
	hub.Info("unseen")

	if len(got) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(got))
	}
	if got[0].Level != LevelError || got[1].Level != LevelInfo {
		t.Fatalf("unexpected levels: %s, %s", got[0].Level, got[1].Level)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("expected unique notice ids, got %q and %q", got[0].ID, got[1].ID)
	}
	if got[1].Time.IsZero() {
		t.Fatal("notice time not set")
	}

	logs := buf.String()
	if !strings.Contains(logs, "[notice] error: 你已经被关进小黑屋中") || !strings.Contains(logs, "[notice] info: unseen") {
		t.Fatalf("unexpected log output: %q", logs)
	}
}
