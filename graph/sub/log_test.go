package sub

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLogBusTextMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogBus(&buf, false)

	l.Publish(Event{Kind: Changed, Addr: Addr{Node: 1, Port: "out", Index: -1}})
	out := buf.String()
	if !strings.Contains(out, "node=1") || !strings.Contains(out, "port=out") {
		t.Fatalf("got %q, want it to contain node=1 and port=out", out)
	}
}

func TestLogBusTextModeIncludesErrAndIndex(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogBus(&buf, false)

	l.Publish(Event{
		Kind: Invalidated,
		Addr: Addr{Node: 2, Port: "items", Index: 3},
		Err:  errors.New("boom"),
	})
	out := buf.String()
	if !strings.Contains(out, "index=3") || !strings.Contains(out, `err="boom"`) {
		t.Fatalf("got %q, want it to contain index=3 and err=\"boom\"", out)
	}
}

func TestLogBusJSONMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogBus(&buf, true)

	l.Publish(Event{Kind: Resolved, Addr: Addr{Node: 9, Port: "out", Index: -1}})
	out := buf.String()
	if !strings.Contains(out, `"kind":"resolved"`) || !strings.Contains(out, `"node":9`) {
		t.Fatalf("got %q, want JSON with kind=resolved and node=9", out)
	}
}

func TestLogBusDefaultsToStdoutForNilWriter(t *testing.T) {
	l := NewLogBus(nil, false)
	if l.writer == nil {
		t.Fatal("expected NewLogBus(nil, ...) to default writer to os.Stdout")
	}
}
