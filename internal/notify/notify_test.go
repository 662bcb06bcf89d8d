package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFeedKeepsNewestWithinLimit(t *testing.T) {
	feed := NewFeed(2)
	feed.Notify(LevelInfo, "one")
	feed.Notify(LevelSuccess, "two")
	feed.Notify(LevelError, "three")

	items := feed.Drain()
	if len(items) != 2 || items[0].Message != "two" || items[1].Message != "three" {
		t.Fatalf("unexpected feed contents %+v", items)
	}
	if items[1].Level != LevelError {
		t.Fatalf("expected error level, got %s", items[1].Level)
	}
	if again := feed.Drain(); len(again) != 0 {
		t.Fatalf("expected empty feed after drain, got %+v", again)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewFeed(5), NewFeed(5)
	Multi{a, nil, b}.Notify(LevelSuccess, "Document created")
	if len(a.Drain()) != 1 || len(b.Drain()) != 1 {
		t.Fatal("expected both sinks to receive the notification")
	}
}

func TestLogSinkWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	sink.Notify(LevelError, "Failed to delete document")
	out := buf.String()
	if !strings.Contains(out, "Failed to delete document") || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
