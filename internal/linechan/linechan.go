// Package linechan carries newline-delimited text over stdio or a serial
// port: commands in, telemetry and status lines out.
package linechan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

const (
	KindStdio  = "stdio"
	KindSerial = "serial"
)

var (
	ErrUnknownKind = errors.New("linechan: unknown channel kind")
	ErrMultiLine   = errors.New("linechan: line contains a newline")
)

type SerialConfig struct {
	Address  string        `koanf:"address" yaml:"address" json:"address"`
	BaudRate int           `koanf:"baud_rate" yaml:"baud_rate" json:"baud_rate"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout" json:"timeout"`
}

type Config struct {
	Kind   string       `koanf:"kind" yaml:"kind" json:"kind"`
	Serial SerialConfig `koanf:"serial" yaml:"serial" json:"serial"`
}

// MaxLineLength bounds an inbound line, line ending included. Longer lines
// are discarded up to the next newline.
const MaxLineLength = 4096

// Channel is safe for one reader and any number of writers.
type Channel struct {
	r          io.Reader
	closer     io.Closer
	onOverflow func(n int)

	mu sync.Mutex
	w  io.Writer
}

func New(r io.Reader, w io.Writer) *Channel {
	return &Channel{r: r, w: w}
}

// Open returns a channel on stdin/stdout or on the configured serial port.
func Open(cfg Config, stdin io.Reader, stdout io.Writer) (*Channel, error) {
	switch cfg.Kind {
	case KindStdio, "":
		return New(stdin, stdout), nil
	case KindSerial:
		return OpenSerial(cfg.Serial)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// OpenSerial opens the port at 8N1.
func OpenSerial(cfg SerialConfig) (*Channel, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Address, err)
	}
	return &Channel{r: port, w: port, closer: port}, nil
}

// OnOverflow registers fn to be called with the byte count of every line
// discarded for exceeding MaxLineLength. It must be set before ReadLines.
func (c *Channel) OnOverflow(fn func(n int)) {
	c.onOverflow = fn
}

// ReadLines sends every non-empty trimmed line to out until the reader is
// exhausted or ctx is cancelled, then closes out. Oversized lines are
// skipped and reading resumes at the next line.
func (c *Channel) ReadLines(ctx context.Context, out chan<- string) error {
	defer close(out)

	br := bufio.NewReaderSize(&timeoutReader{ctx: ctx, r: c.r}, MaxLineLength)
	for {
		raw, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			n, err := discardLine(br, len(raw))
			if c.onOverflow != nil {
				c.onOverflow(n)
			}
			if err != nil {
				return readErr(ctx, err)
			}
			continue
		}
		if line := strings.TrimSpace(string(raw)); line != "" {
			select {
			case out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return readErr(ctx, err)
		}
	}
}

// discardLine consumes the rest of the current line. n is the count
// already consumed.
func discardLine(br *bufio.Reader, n int) (int, error) {
	for {
		chunk, err := br.ReadSlice('\n')
		n += len(chunk)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return n, err
		}
	}
}

func readErr(ctx context.Context, err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("read lines: %w", err)
}

// WriteLine writes s followed by a newline.
func (c *Channel) WriteLine(s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return ErrMultiLine
	}
	_, err := c.Write([]byte(s + "\n"))
	return err
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *Channel) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// timeoutReader turns serial read timeouts into a chance to observe ctx.
type timeoutReader struct {
	ctx context.Context
	r   io.Reader
}

func (t *timeoutReader) Read(p []byte) (int, error) {
	for {
		n, err := t.r.Read(p)
		if n == 0 && errors.Is(err, serial.ErrTimeout) {
			if cerr := t.ctx.Err(); cerr != nil {
				return 0, cerr
			}
			continue
		}
		if errors.Is(err, serial.ErrTimeout) {
			err = nil
		}
		return n, err
	}
}
