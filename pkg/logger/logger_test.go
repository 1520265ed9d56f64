package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestFromSlogTagsComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	FromSlog(base, "cron").Printf("start %d entries", 3)

	out := buf.String()
	if !strings.Contains(out, "component=cron") || !strings.Contains(out, `msg="start 3 entries"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromSlogWithoutBaseFallsBack(t *testing.T) {
	t.Parallel()

	if l := FromSlog(nil, "cron"); l == nil || l.Prefix() != "[cron] " {
		t.Fatalf("expected prefixed stdlib logger, got %v", l)
	}
}
