package gpio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestEchoDistance(t *testing.T) {
	tests := []struct {
		name  string
		width time.Duration
		want  float64
	}{
		{"no echo", 0, 0},
		{"negative width", -time.Millisecond, 0},
		{"ten centimetres", 582 * time.Microsecond, 10},
		{"truncated to whole cm", 600 * time.Microsecond, 10},
		{"just under threshold", 872 * time.Microsecond, 14},
		{"one metre", 5820 * time.Microsecond, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEqual(t, "EchoDistance", EchoDistance(tt.width), tt.want)
		})
	}
}

func TestQuadratureCountsBothDirections(t *testing.T) {
	q := NewQuadrature(false, false)

	// One full clockwise cycle: 00 -> 01 -> 11 -> 10 -> 00.
	for _, s := range [][2]bool{{false, true}, {true, true}, {true, false}, {false, false}} {
		q.Update(s[0], s[1])
	}
	assertEqual(t, "position after clockwise cycle", q.Position(), int64(-4))

	// Reverse it twice.
	for range 2 {
		for _, s := range [][2]bool{{true, false}, {true, true}, {false, true}, {false, false}} {
			q.Update(s[0], s[1])
		}
	}
	assertEqual(t, "position after two reverse cycles", q.Position(), int64(4))
}

func TestQuadratureIgnoresInvalidTransitions(t *testing.T) {
	q := NewQuadrature(false, false)
	q.Update(true, true) // both lines changed at once
	q.Update(true, true) // no change
	assertEqual(t, "position", q.Position(), int64(0))
}

func TestIIOClimateReadsMilliUnits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "in_temp_input"), "24500\n")
	writeFile(t, filepath.Join(dir, "in_humidityrelative_input"), "41000\n")

	c, err := NewIIOClimate(dir)
	if err != nil {
		t.Fatal(err)
	}
	temp, hum, err := c.ReadClimate()
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "temperature", temp, 24.5)
	assertEqual(t, "humidity", hum, 41.0)
}

func TestIIOClimateErrors(t *testing.T) {
	if _, err := NewIIOClimate(""); !errors.Is(err, ErrMissingIIODevice) {
		t.Fatalf("expected ErrMissingIIODevice, got %v", err)
	}

	dir := t.TempDir()
	c, _ := NewIIOClimate(dir)
	if _, _, err := c.ReadClimate(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	writeFile(t, filepath.Join(dir, "in_temp_input"), "garbage")
	if _, _, err := c.ReadClimate(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPWMFanWritesDutyCycle(t *testing.T) {
	chip := t.TempDir()
	ch := filepath.Join(chip, "pwm1")
	if err := os.Mkdir(ch, 0o755); err != nil {
		t.Fatal(err)
	}

	f, err := OpenPWMFan(chip, 1, 40*time.Microsecond)
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "period", readFile(t, filepath.Join(ch, "period")), "40000")
	assertEqual(t, "enable", readFile(t, filepath.Join(ch, "enable")), "1")
	assertEqual(t, "initial duty", readFile(t, filepath.Join(ch, "duty_cycle")), "0")

	if err := f.SetFan(255); err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "full duty", readFile(t, filepath.Join(ch, "duty_cycle")), "40000")

	if err := f.SetFan(51); err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "partial duty", readFile(t, filepath.Join(ch, "duty_cycle")), "8000")

	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "enable after close", readFile(t, filepath.Join(ch, "enable")), "0")
}

func TestOpenPWMFanRejectsBadPeriod(t *testing.T) {
	if _, err := OpenPWMFan(t.TempDir(), 0, 0); !errors.Is(err, ErrInvalidPWMPeriod) {
		t.Fatalf("expected ErrInvalidPWMPeriod, got %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
