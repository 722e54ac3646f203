package control

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func newTestPID(t *testing.T, dir Direction) *PIDController {
	t.Helper()
	pid, err := NewPIDController(PIDParams{OutMin: 0, OutMax: 255, Direction: dir})
	if err != nil {
		t.Fatalf("NewPIDController() failed: %v", err)
	}
	return pid
}

func TestValidatePIDParams(t *testing.T) {
	ok := PIDParams{OutMin: 0, OutMax: 255}
	if err := ok.Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	bad := PIDParams{OutMin: 255, OutMax: 0}
	if err := bad.Validate(); err != ErrInvalidOutputLimits {
		t.Errorf("Expected ErrInvalidOutputLimits, got %v", err)
	}
	if _, err := NewPIDController(bad); err != ErrInvalidOutputLimits {
		t.Errorf("NewPIDController() error = %v, want ErrInvalidOutputLimits", err)
	}
}

func TestPIDCompute(t *testing.T) {
	gains := Gains{Kp: 25, Ki: 0.2, Kd: 0}
	tests := []struct {
		name string
		dir  Direction
		pv   float64
		sp   float64
		g    Gains
		want float64
	}{
		{"Reverse above setpoint", DirectionReverse, 27, 25, gains, 50.4},
		{"Reverse at setpoint", DirectionReverse, 25, 25, gains, 0},
		{"Reverse below setpoint clamps low", DirectionReverse, 20, 25, gains, 0},
		{"Reverse far above clamps high", DirectionReverse, 40, 25, gains, 255},
		{"Direct below setpoint", DirectionDirect, 20, 25, Gains{Kp: 1}, 5},
		{"Direct above setpoint clamps low", DirectionDirect, 30, 25, Gains{Kp: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid := newTestPID(t, tt.dir)
			got := pid.Compute(tt.pv, tt.sp, tt.g, time.Second)
			if !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("Compute() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPIDRereadsGainsEveryCall(t *testing.T) {
	pid := newTestPID(t, DirectionReverse)

	first := pid.Compute(26, 25, Gains{Kp: 25, Ki: 0.2}, time.Second)
	if !almostEqual(first, 25.2, 1e-9) {
		t.Fatalf("first Compute() = %v, want 25.2", first)
	}
	second := pid.Compute(26, 25, Gains{Kp: 10, Ki: 0.2}, time.Second)
	if !almostEqual(second, 10.4, 1e-9) {
		t.Fatalf("second Compute() = %v, want 10.4", second)
	}
}

func TestPIDOutputRisesWithTemperatureWhenCooling(t *testing.T) {
	pid := newTestPID(t, DirectionReverse)
	g := Gains{Kp: 5, Ki: 0.1, Kd: 1}
	prev := pid.Compute(25, 25, g, time.Second)
	for pv := 25.5; pv <= 30; pv += 0.5 {
		out := pid.Compute(pv, 25, g, time.Second)
		if out < prev {
			t.Fatalf("output decreased while temperature rose: %v -> %v at %v", prev, out, pv)
		}
		prev = out
	}
}

func TestPIDIntegralIsClamped(t *testing.T) {
	pid := newTestPID(t, DirectionReverse)
	for range 1000 {
		pid.Compute(35, 25, Gains{Ki: 10}, time.Second)
	}
	if pid.integral != 255 {
		t.Fatalf("integral = %v, want clamp at 255", pid.integral)
	}
	// Windup is bounded: the first computation back below setpoint unwinds immediately.
	out := pid.Compute(20, 25, Gains{Kp: 100, Ki: 10}, time.Second)
	if out != 0 {
		t.Fatalf("Compute() = %v, want 0", out)
	}
}

func TestPIDNaNDoesNotPoisonState(t *testing.T) {
	pid := newTestPID(t, DirectionReverse)
	g := Gains{Kp: 25, Ki: 0.2}

	if got := pid.Compute(math.NaN(), 25, g, time.Second); !math.IsNaN(got) {
		t.Fatalf("Compute(NaN) = %v, want NaN", got)
	}
	if got := pid.Compute(26, 25, g, time.Second); !almostEqual(got, 25.2, 1e-9) {
		t.Fatalf("Compute() after NaN = %v, want 25.2", got)
	}
}

func TestPIDReset(t *testing.T) {
	pid := newTestPID(t, DirectionReverse)
	pid.Compute(30, 25, Gains{Ki: 1}, time.Second)
	pid.Reset()
	if pid.integral != 0 || pid.initialized {
		t.Fatalf("Reset() left integral=%v initialized=%v", pid.integral, pid.initialized)
	}
}
