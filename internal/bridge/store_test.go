package bridge

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStoreObserve(t *testing.T) {
	s := NewStore(func() time.Time { return t0 })

	require.False(t, s.Get().HasRecord)

	s.Observe("26.50,41.00,80,ON,127.00,50")
	s.Observe("STATUS: Manual mode set to: 1")
	s.Observe("ERROR: invalid PID format")
	s.Observe("not,a,record")

	l := s.Get()
	require.True(t, l.HasRecord)
	require.Equal(t, 26.5, l.Record.Temperature)
	require.True(t, l.Record.Manual)
	require.Equal(t, int64(50), l.Record.EncoderPosition)
	require.Equal(t, t0, l.UpdatedAt)
	require.Equal(t, "Manual mode set to: 1", l.Status)
	require.Equal(t, "invalid PID format", l.Error)
	require.Equal(t, uint64(1), l.Malformed)
}

func TestStoreAcceptsNaNReadings(t *testing.T) {
	s := NewStore(nil)
	s.Observe("NaN,NaN,0,OFF,255.00,0")
	l := s.Get()
	require.True(t, l.HasRecord)
	require.True(t, math.IsNaN(l.Record.Temperature))
	require.Equal(t, 255.0, l.Record.FanOutput)
}

func TestCheckCommand(t *testing.T) {
	cmd, err := CheckCommand("  ALARM=1 \r\n")
	require.NoError(t, err)
	require.Equal(t, "ALARM=1", cmd)

	_, err = CheckCommand(" \n ")
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = CheckCommand("ALARM=1\nMANUAL=1")
	require.ErrorIs(t, err, ErrMultiLineCommand)
}

type recordingObserver struct{ lines []string }

func (r *recordingObserver) Observe(line string) { r.lines = append(r.lines, line) }

func TestForwardFansOutUntilClosed(t *testing.T) {
	in := make(chan string, 3)
	in <- "a"
	in <- "b"
	close(in)

	o1, o2 := &recordingObserver{}, &recordingObserver{}
	require.NoError(t, Forward(context.Background(), in, o1, o2))
	require.Equal(t, []string{"a", "b"}, o1.lines)
	require.Equal(t, []string{"a", "b"}, o2.lines)
}

func TestForwardStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Forward(ctx, make(chan string)), context.Canceled)
}
