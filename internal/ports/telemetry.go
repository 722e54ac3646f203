package ports

import "github.com/Agrid-Dev/fanctl/internal/telemetry"

// TelemetrySink is the outbound channel used by the control loop (records)
// and by the command processor (acknowledgements and errors).
type TelemetrySink interface {
	Record(telemetry.Record)
	Status(msg string)
	Error(msg string)
}

// LineWriter writes one newline-terminated line to a line channel.
type LineWriter interface {
	WriteLine(line string) error
}
