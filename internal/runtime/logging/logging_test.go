package logging

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

type capturingAdapter struct {
	mu     sync.Mutex
	lines  []string
	fields []watermill.LogFields
}

func (c *capturingAdapter) record(level, msg string, fields watermill.LogFields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, level+": "+msg)
	c.fields = append(c.fields, fields)
}

func (c *capturingAdapter) Error(msg string, err error, fields watermill.LogFields) {
	c.record("error", msg+" ("+err.Error()+")", fields)
}
func (c *capturingAdapter) Info(msg string, fields watermill.LogFields)  { c.record("info", msg, fields) }
func (c *capturingAdapter) Debug(msg string, fields watermill.LogFields) { c.record("debug", msg, fields) }
func (c *capturingAdapter) Trace(msg string, fields watermill.LogFields) { c.record("trace", msg, fields) }
func (c *capturingAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return c
}

func TestWatermillServiceLoggerForwardsAllLevels(t *testing.T) {
	capture := &capturingAdapter{}
	logger := NewWatermillServiceLogger(capture)

	logger.Debug("d", nil)
	logger.Info("i", LogFields{"k": "v"})
	logger.Trace("t", nil)
	logger.Error("e", errors.New("boom"), nil)

	if len(capture.lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(capture.lines))
	}
	if !strings.Contains(capture.lines[3], "boom") {
		t.Errorf("error line missing cause: %s", capture.lines[3])
	}
	if capture.fields[1]["k"] != "v" {
		t.Errorf("info fields not forwarded: %+v", capture.fields[1])
	}
}

func TestNewWatermillAdapterRoundTrip(t *testing.T) {
	capture := &capturingAdapter{}
	adapter := NewWatermillAdapter(NewWatermillServiceLogger(capture))

	adapter.Info("from router", watermill.LogFields{"topic": "kinesis.out"})
	adapter.With(watermill.LogFields{"handler": "bridge"}).Debug("scoped", nil)

	if len(capture.lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(capture.lines))
	}
	if capture.fields[0]["topic"] != "kinesis.out" {
		t.Errorf("fields lost in round trip: %+v", capture.fields[0])
	}
}

func TestNewSlogServiceLogger(t *testing.T) {
	var sb strings.Builder
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(&sb, nil)))

	logger.Info("forwarded", LogFields{"stream": "orders"})

	out := sb.String()
	if !strings.Contains(out, "forwarded") || !strings.Contains(out, "orders") {
		t.Errorf("unexpected slog output: %s", out)
	}
}

func TestNilLoggersPanic(t *testing.T) {
	for name, fn := range map[string]func(){
		"slog":      func() { NewSlogServiceLogger(nil) },
		"watermill": func() { NewWatermillServiceLogger(nil) },
		"adapter":   func() { NewWatermillAdapter(nil) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			fn()
		})
	}
}
