// Package telemetry formats the per-cycle status record and the tagged
// acknowledgement/error lines that share the outbound line channel.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	StatusPrefix = "STATUS: "
	ErrorPrefix  = "ERROR: "
)

var ErrMalformedRecord = errors.New("malformed telemetry record")

// Record is one cycle's readings and actuation, in wire order.
type Record struct {
	Temperature     float64
	Humidity        float64
	Distance        float64
	Manual          bool
	FanOutput       float64
	EncoderPosition int64
}

const recordFields = 6

// String renders the record as the comma-joined wire line (no newline).
func (r Record) String() string {
	return strings.Join([]string{
		formatFloat(r.Temperature),
		formatFloat(r.Humidity),
		formatWhole(r.Distance),
		onOff(r.Manual),
		formatFloat(r.FanOutput),
		strconv.FormatInt(r.EncoderPosition, 10),
	}, ",")
}

// ParseRecord is the inverse of Record.String. NaN fields are accepted.
func ParseRecord(line string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != recordFields {
		return Record{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedRecord, recordFields, len(parts))
	}

	var (
		r   Record
		err error
	)
	floats := []*float64{&r.Temperature, &r.Humidity, &r.Distance}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(parts[i], 64); err != nil {
			return Record{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRecord, i, err)
		}
	}
	switch parts[3] {
	case "ON":
		r.Manual = true
	case "OFF":
		r.Manual = false
	default:
		return Record{}, fmt.Errorf("%w: manual flag %q", ErrMalformedRecord, parts[3])
	}
	if r.FanOutput, err = strconv.ParseFloat(parts[4], 64); err != nil {
		return Record{}, fmt.Errorf("%w: fan output: %v", ErrMalformedRecord, err)
	}
	if r.EncoderPosition, err = strconv.ParseInt(parts[5], 10, 64); err != nil {
		return Record{}, fmt.Errorf("%w: encoder position: %v", ErrMalformedRecord, err)
	}
	return r, nil
}

// Kind tells the structured records apart from the tagged ad-hoc lines.
type Kind int

const (
	KindRecord Kind = iota
	KindStatus
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Classify returns the line kind and, for tagged lines, the message without its tag.
func Classify(line string) (Kind, string) {
	switch {
	case strings.HasPrefix(line, StatusPrefix):
		return KindStatus, strings.TrimPrefix(line, StatusPrefix)
	case strings.HasPrefix(line, ErrorPrefix):
		return KindError, strings.TrimPrefix(line, ErrorPrefix)
	default:
		return KindRecord, line
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// formatWhole truncates to whole centimetres. Non-finite values keep the
// float form so they still parse back.
func formatWhole(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return formatFloat(v)
	}
	return strconv.FormatInt(int64(v), 10)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
