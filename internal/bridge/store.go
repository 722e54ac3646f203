// Package bridge relays the controller's line channel to MQTT and serves the
// latest telemetry over HTTP. It runs beside the controller, never inside it.
package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Agrid-Dev/fanctl/internal/telemetry"
)

var (
	ErrEmptyCommand     = errors.New("bridge: empty command")
	ErrMultiLineCommand = errors.New("bridge: command contains a newline")
)

// Observer receives every line read from the controller.
type Observer interface {
	Observe(line string)
}

// Forward hands each line from in to every observer, in order, until in is
// closed or ctx is cancelled.
func Forward(ctx context.Context, in <-chan string, observers ...Observer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-in:
			if !ok {
				return nil
			}
			for _, o := range observers {
				o.Observe(line)
			}
		}
	}
}

// Latest is what the store knows about the controller.
type Latest struct {
	Record    telemetry.Record
	HasRecord bool
	UpdatedAt time.Time
	Status    string
	Error     string
	Malformed uint64
}

// Store keeps the latest parsed record and the latest tagged lines.
type Store struct {
	mu     sync.RWMutex
	latest Latest
	now    func() time.Time
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now}
}

func (s *Store) Observe(line string) {
	kind, body := telemetry.Classify(line)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case telemetry.KindStatus:
		s.latest.Status = body
	case telemetry.KindError:
		s.latest.Error = body
	default:
		rec, err := telemetry.ParseRecord(body)
		if err != nil {
			s.latest.Malformed++
			return
		}
		s.latest.Record = rec
		s.latest.HasRecord = true
		s.latest.UpdatedAt = s.now()
	}
}

func (s *Store) Get() Latest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// CheckCommand trims a command and rejects what cannot travel as one line.
func CheckCommand(cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return "", ErrEmptyCommand
	}
	if strings.ContainsAny(cmd, "\r\n") {
		return "", ErrMultiLineCommand
	}
	return cmd, nil
}
