package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"arbwatch/internal/application/port"
)

const clearScreen = "\033[H\033[2J"

type Sink struct {
	mu    sync.Mutex
	out   io.Writer
	clear bool
}

func NewSink(clear bool) port.Sink { return NewSinkTo(os.Stdout, clear) }

func NewSinkTo(out io.Writer, clear bool) *Sink {
	return &Sink{out: out, clear: clear}
}

// WriteReport 每个周期重画一次报告；clear 为 true 时先清屏
func (s *Sink) WriteReport(ts time.Time, report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clear {
		if _, err := io.WriteString(s.out, clearScreen); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(s.out, "%s %s", ts.Format("2006-01-02 15:04:05"), report)
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, "\n")
	return err
}
