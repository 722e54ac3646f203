package linechan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/goburrow/serial"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch *Channel, ctx context.Context) ([]string, error) {
	t.Helper()
	out := make(chan string)
	errCh := make(chan error, 1)
	go func() { errCh <- ch.ReadLines(ctx, out) }()

	var lines []string
	for l := range out {
		lines = append(lines, l)
	}
	return lines, <-errCh
}

func TestReadLinesTrimsAndSkipsEmpty(t *testing.T) {
	in := strings.NewReader("  SETPOINT=24 \n\n\r\nPID=1,2,3\r\n   \nALARM=1")
	lines, err := collect(t, New(in, io.Discard), context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"SETPOINT=24", "PID=1,2,3", "ALARM=1"}, lines)
}

type timeoutThenData struct {
	timeouts int
	data     *strings.Reader
}

func (r *timeoutThenData) Read(p []byte) (int, error) {
	if r.timeouts > 0 {
		r.timeouts--
		return 0, serial.ErrTimeout
	}
	return r.data.Read(p)
}

func TestReadLinesRetriesSerialTimeouts(t *testing.T) {
	r := &timeoutThenData{timeouts: 3, data: strings.NewReader("MANUAL=1\n")}
	lines, err := collect(t, New(r, io.Discard), context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"MANUAL=1"}, lines)
}

func TestReadLinesStopsOnCancelDuringTimeouts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &timeoutThenData{timeouts: 1 << 30, data: strings.NewReader("")}
	lines, err := collect(t, New(r, io.Discard), ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, lines)
}

func TestReadLinesSkipsOversizedLine(t *testing.T) {
	long := strings.Repeat("X", 70000)
	ch := New(strings.NewReader(long+"\nSETPOINT=20\n"), io.Discard)
	var overflows []int
	ch.OnOverflow(func(n int) { overflows = append(overflows, n) })

	lines, err := collect(t, ch, context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"SETPOINT=20"}, lines)
	require.Equal(t, []int{len(long) + 1}, overflows)
}

func TestReadLinesOversizedFinalLine(t *testing.T) {
	ch := New(strings.NewReader("ALARM=1\n"+strings.Repeat("Y", MaxLineLength*2)), io.Discard)
	var overflows int
	ch.OnOverflow(func(int) { overflows++ })

	lines, err := collect(t, ch, context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"ALARM=1"}, lines)
	require.Equal(t, 1, overflows)
}

func TestReadLinesAcceptsLineAtLimit(t *testing.T) {
	line := "A=" + strings.Repeat("1", MaxLineLength-3)
	ch := New(strings.NewReader(line+"\n"), io.Discard)
	ch.OnOverflow(func(int) { t.Error("unexpected overflow") })

	lines, err := collect(t, ch, context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{line}, lines)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestReadLinesReportsReadErrors(t *testing.T) {
	_, err := collect(t, New(failingReader{}, io.Discard), context.Background())
	require.ErrorContains(t, err, "boom")
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	ch := New(strings.NewReader(""), &buf)

	require.NoError(t, ch.WriteLine("STATUS: Manual mode set to: 1"))
	require.ErrorIs(t, ch.WriteLine("A=1\nB=2"), ErrMultiLine)
	require.Equal(t, "STATUS: Manual mode set to: 1\n", buf.String())
	require.NoError(t, ch.Close())
}

func TestOpen(t *testing.T) {
	var buf bytes.Buffer
	ch, err := Open(Config{Kind: KindStdio}, strings.NewReader(""), &buf)
	require.NoError(t, err)
	require.NoError(t, ch.WriteLine("x"))
	require.Equal(t, "x\n", buf.String())

	_, err = Open(Config{Kind: "carrier-pigeon"}, nil, nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}
