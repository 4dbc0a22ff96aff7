package port

import "time"

type Sink interface {
	// WriteReport replaces the current status report.
	WriteReport(ts time.Time, report string) error
	// Normal newline (for logs)
	NewLine() error
}
