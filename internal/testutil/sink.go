package testutil

import (
	"sync"

	"github.com/Agrid-Dev/fanctl/internal/telemetry"
)

// CaptureSink is a ports.TelemetrySink that keeps everything it receives.
type CaptureSink struct {
	mu       sync.Mutex
	Records  []telemetry.Record
	Statuses []string
	Errors   []string
}

func (c *CaptureSink) Record(r telemetry.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Records = append(c.Records, r)
}

func (c *CaptureSink) Status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses = append(c.Statuses, msg)
}

func (c *CaptureSink) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors = append(c.Errors, msg)
}

func (c *CaptureSink) LastRecord() (telemetry.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Records) == 0 {
		return telemetry.Record{}, false
	}
	return c.Records[len(c.Records)-1], true
}
