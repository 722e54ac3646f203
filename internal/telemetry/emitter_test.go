package telemetry

import (
	"bytes"
	"errors"
	"testing"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port closed") }

func TestEmitterWritesTaggedLines(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, nil)

	e.Status("Alarm mode set to: 1")
	e.Record(Record{Temperature: 25, Humidity: 40, Distance: 50, FanOutput: 0, EncoderPosition: 0})
	e.Error("invalid PID parameters")

	want := "STATUS: Alarm mode set to: 1\n" +
		"25.00,40.00,50,OFF,0.00,0\n" +
		"ERROR: invalid PID parameters\n"
	if got := buf.String(); got != want {
		t.Fatalf("emitted:\n%s\nwant:\n%s", got, want)
	}
	if e.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", e.Dropped())
	}
}

func TestEmitterDropsOnWriteError(t *testing.T) {
	e := NewEmitter(failingWriter{}, nil)
	e.Record(Record{})
	e.Status("x")
	if got := e.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}

	none := NewEmitter(nil, nil)
	none.Record(Record{})
	if none.Dropped() != 1 {
		t.Fatalf("nil writer should drop, got %d", none.Dropped())
	}
}
