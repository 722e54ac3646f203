package telemetry

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Emitter writes records and tagged lines to a line channel. Writes are
// fire-and-forget: a failed write is counted and logged, never retried.
type Emitter struct {
	mu      sync.Mutex
	w       io.Writer
	log     *slog.Logger
	dropped atomic.Uint64
}

func NewEmitter(w io.Writer, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Emitter{w: w, log: log}
}

func (e *Emitter) Record(r Record) {
	e.writeLine(r.String())
}

func (e *Emitter) Status(msg string) {
	e.writeLine(StatusPrefix + msg)
}

func (e *Emitter) Error(msg string) {
	e.writeLine(ErrorPrefix + msg)
}

// Dropped reports how many lines were lost to write errors.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Emitter) writeLine(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.w == nil {
		e.dropped.Add(1)
		return
	}
	if _, err := io.WriteString(e.w, line+"\n"); err != nil {
		n := e.dropped.Add(1)
		e.log.Debug("telemetry line dropped", "err", err, "dropped_total", n)
	}
}
