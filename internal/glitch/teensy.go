package glitch

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// ConfigureParams is the glitch specification sent to the
// microcontroller in one line: replay count, the three voltage
// levels and their hold durations.
type ConfigureParams struct {
	Repeat     int
	VStart     float64
	HoldStart  int
	VGlitch    float64
	HoldDuring int
	VEnd       float64
}

// openTeensy opens the microcontroller's serial line. baud is
// typically 115200; readTimeout bounds how long a single line read
// blocks waiting for an acknowledgement.
func openTeensy(dev string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	c := &serial.Config{Name: dev, Baud: baud, ReadTimeout: readTimeout}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return s, nil
}

func writeLine(w io.Writer, line string) error {
	data := []byte(line)
	n, err := w.Write(data)
	if err != nil {
		return &WriteError{Err: err}
	}
	if n != len(data) {
		return &WriteError{Err: fmt.Errorf("short write: wrote %d of %d bytes", n, len(data))}
	}
	return nil
}

// drainAckLines reads up to max lines from r, stopping early (without
// error) on the first failed or empty read: missing acknowledgements
// are non-fatal, the caller proceeds regardless.
func drainAckLines(r *bufio.Reader, max int) []string {
	var lines []string
	for i := 0; i < max; i++ {
		line, err := r.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			break
		}
	}
	return lines
}

func delayLine(ms int) string {
	return fmt.Sprintf("delay %d\n", ms)
}

func configureLine(p ConfigureParams) string {
	return fmt.Sprintf("%d %.4f %d %.4f %d %.4f\n",
		p.Repeat, p.VStart, p.HoldStart, p.VGlitch, p.HoldDuring, p.VEnd)
}
