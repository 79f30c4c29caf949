package sub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogBus writes structured event output to a writer, adapted from the
// teacher's emit.LogEmitter to the Changed/Resolved/Invalidated event
// shape. Supports text (key=value) and JSON Lines output.
type LogBus struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogBus creates a LogBus. A nil writer defaults to os.Stdout.
func NewLogBus(writer io.Writer, jsonMode bool) *LogBus {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogBus{writer: writer, jsonMode: jsonMode}
}

// Publish implements Bus.
func (l *LogBus) Publish(ev Event) {
	if l.jsonMode {
		l.publishJSON(ev)
	} else {
		l.publishText(ev)
	}
}

func (l *LogBus) publishJSON(ev Event) {
	errStr := ""
	if ev.Err != nil {
		errStr = ev.Err.Error()
	}
	data, err := json.Marshal(struct {
		Kind  string `json:"kind"`
		Node  uint64 `json:"node"`
		Port  string `json:"port"`
		Index int    `json:"index"`
		Err   string `json:"err,omitempty"`
	}{
		Kind:  ev.Kind.String(),
		Node:  ev.Addr.Node,
		Port:  ev.Addr.Port,
		Index: ev.Addr.Index,
		Err:   errStr,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogBus) publishText(ev Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] node=%d port=%s", ev.Kind, ev.Addr.Node, ev.Addr.Port)
	if ev.Addr.Index >= 0 {
		_, _ = fmt.Fprintf(l.writer, " index=%d", ev.Addr.Index)
	}
	if ev.Err != nil {
		_, _ = fmt.Fprintf(l.writer, " err=%q", ev.Err.Error())
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// PublishBatch implements Bus.
func (l *LogBus) PublishBatch(_ context.Context, events []Event) error {
	for _, ev := range events {
		l.Publish(ev)
	}
	return nil
}

// Flush implements Bus. LogBus writes synchronously so there is nothing
// to flush; it exists to satisfy Bus for polymorphic use alongside
// OTelBus and BufferedBus.
func (l *LogBus) Flush(context.Context) error { return nil }
