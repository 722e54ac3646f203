package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/fanctl/internal/control"
	"github.com/Agrid-Dev/fanctl/internal/ports"
)

// Input registers (function 4), read from the latest record.
const (
	IRTemperature = iota // °C x100, int16
	IRHumidity           // %RH x100, int16
	IRDistance           // cm, int16
	IRFanOutput          // 0..255
	IRManual             // 0 | 1
	IREncoderHigh        // position, int32 high word
	IREncoderLow         // position, int32 low word
	inputRegisterCount
)

// Holding registers (function 6 writes, function 3 reads back the last
// value written). Each write is forwarded as one command line.
const (
	HRSetpoint          = iota // °C x100, int16
	HRTolerance                // °C x100, int16
	HRDistanceThreshold        // cm
	HRAlarm                    // 0 | 1
	HRManual                   // 0 | 1
	holdingRegisterCount
)

// NotAvailable is reported for a NaN reading.
const NotAvailable uint16 = 0x8000

const TemperatureScale int = 100

type ModbusConfig struct {
	Addr   string
	UnitID byte // 1..247
}

// ModbusServer exposes the store as a register view and maps register
// writes onto command lines.
type ModbusServer struct {
	store *Store
	lines ports.LineWriter
	cfg   ModbusConfig
	log   *slog.Logger

	mu      sync.Mutex
	holding [holdingRegisterCount]uint16
}

func NewModbusServer(store *Store, lines ports.LineWriter, cfg ModbusConfig, log *slog.Logger) (*ModbusServer, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ModbusServer{store: store, lines: lines, cfg: cfg, log: log}, nil
}

// Run registers the handlers, listens on the configured address and blocks
// until ctx is cancelled.
func (m *ModbusServer) Run(ctx context.Context) error {
	serv := mbserver.NewServer()

	// Handlers go in before ListenTCP so the server goroutines never see
	// a half-built table.
	serv.RegisterFunctionHandler(3, m.readHolding)
	serv.RegisterFunctionHandler(4, m.readInput)
	serv.RegisterFunctionHandler(6, m.writeSingle)

	if err := serv.ListenTCP(m.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", m.cfg.Addr, err)
	}

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

func (m *ModbusServer) readInput(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(frame.GetData(), inputRegisterCount)
	if exc != nil {
		return []byte{}, exc
	}
	l := m.store.Get()
	if !l.HasRecord {
		return []byte{}, &mbserver.SlaveDeviceFailure
	}
	regs := inputRegisters(l)
	return registerResponse(regs[start : start+qty]), &mbserver.Success
}

func (m *ModbusServer) readHolding(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(frame.GetData(), holdingRegisterCount)
	if exc != nil {
		return []byte{}, exc
	}
	m.mu.Lock()
	regs := m.holding
	m.mu.Unlock()
	return registerResponse(regs[start : start+qty]), &mbserver.Success
}

func (m *ModbusServer) writeSingle(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	line, exc := commandFor(addr, value)
	if exc != nil {
		return []byte{}, exc
	}
	cmd, err := CheckCommand(line)
	if err != nil {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if err := m.lines.WriteLine(cmd); err != nil {
		m.log.Warn("modbus command not sent", "command", cmd, "err", err)
		return []byte{}, &mbserver.SlaveDeviceFailure
	}
	m.mu.Lock()
	m.holding[addr] = value
	m.mu.Unlock()

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// commandFor maps one holding register write onto its command line.
func commandFor(addr, value uint16) (string, *mbserver.Exception) {
	switch addr {
	case HRSetpoint:
		return fmt.Sprintf("%s=%.2f", control.KeySetpoint, decodeTemp(value)), nil
	case HRTolerance:
		return fmt.Sprintf("%s=%.2f", control.KeyTolerance, decodeTemp(value)), nil
	case HRDistanceThreshold:
		return fmt.Sprintf("%s=%d", control.KeyDistance, value), nil
	case HRAlarm, HRManual:
		if value > 1 {
			return "", &mbserver.IllegalDataValue
		}
		key := control.KeyAlarm
		if addr == HRManual {
			key = control.KeyManual
		}
		return fmt.Sprintf("%s=%d", key, value), nil
	default:
		return "", &mbserver.IllegalDataAddress
	}
}

func inputRegisters(l Latest) [inputRegisterCount]uint16 {
	r := l.Record
	pos := uint32(int32(r.EncoderPosition))
	var regs [inputRegisterCount]uint16
	regs[IRTemperature] = encodeTemp(r.Temperature)
	regs[IRHumidity] = encodeTemp(r.Humidity)
	regs[IRDistance] = encodeWhole(r.Distance)
	regs[IRFanOutput] = encodeWhole(r.FanOutput)
	if r.Manual {
		regs[IRManual] = 1
	}
	regs[IREncoderHigh] = uint16(pos >> 16)
	regs[IREncoderLow] = uint16(pos)
	return regs
}

// readRange decodes a start/quantity request against a table of n registers.
func readRange(data []byte, n int) (start, qty int, exc *mbserver.Exception) {
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > 125 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	if start+qty > n {
		return 0, 0, &mbserver.IllegalDataAddress
	}
	return start, qty, nil
}

// registerResponse builds byte count + register bytes.
func registerResponse(regs []uint16) []byte {
	byteCount := len(regs) * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

func encodeTemp(v float64) uint16 {
	if math.IsNaN(v) {
		return NotAvailable
	}
	return clampInt16(math.Round(v * float64(TemperatureScale)))
}

func decodeTemp(u uint16) float64 {
	return float64(int16(u)) / float64(TemperatureScale)
}

func encodeWhole(v float64) uint16 {
	if math.IsNaN(v) {
		return NotAvailable
	}
	return clampInt16(math.Trunc(v))
}

func clampInt16(v float64) uint16 {
	return uint16(int16(min(max(v, math.MinInt16), math.MaxInt16)))
}
