package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// PWMFan drives the fan through a sysfs PWM channel.
type PWMFan struct {
	mu     sync.Mutex
	dir    string
	period time.Duration
}

// OpenPWMFan exports the channel if needed, sets its period and enables it
// at zero duty.
func OpenPWMFan(chip string, channel int, period time.Duration) (*PWMFan, error) {
	if period <= 0 {
		return nil, ErrInvalidPWMPeriod
	}
	dir := filepath.Join(chip, "pwm"+strconv.Itoa(channel))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeAttr(filepath.Join(chip, "export"), strconv.Itoa(channel)); err != nil {
			return nil, err
		}
	}

	f := &PWMFan{dir: dir, period: period}
	if err := writeAttr(filepath.Join(dir, "duty_cycle"), "0"); err != nil {
		return nil, err
	}
	if err := writeAttr(filepath.Join(dir, "period"), strconv.FormatInt(period.Nanoseconds(), 10)); err != nil {
		return nil, err
	}
	if err := writeAttr(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, err
	}
	return f, nil
}

// SetFan maps magnitude 0..255 onto the duty cycle.
func (f *PWMFan) SetFan(magnitude uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAttr(filepath.Join(f.dir, "duty_cycle"), strconv.FormatInt(DutyNanos(f.period, magnitude), 10))
}

func (f *PWMFan) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAttr(filepath.Join(f.dir, "enable"), "0")
}

func DutyNanos(period time.Duration, magnitude uint8) int64 {
	return period.Nanoseconds() * int64(magnitude) / 255
}

func writeAttr(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
