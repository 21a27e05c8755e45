package udco2s

import (
	"fmt"
	"github.com/rs/zerolog/log"
	"io"
	"unicode/utf8"
)

const readBufferSize = 1000

// Publisher receives every matched reading after it has been printed.
type Publisher interface {
	Publish(r Reading) error
}

// Loop reads from the sensor and prints one line per reading until it is
// told to shut down, or, in once mode, until the first reading.
type Loop struct {
	Port       io.Reader
	Shutdown   <-chan Shutdown
	Format     Format
	Once       bool
	Out        io.Writer
	Publishers []Publisher
}

// Run returns nil when the loop ended normally, or the first fatal error.
// It does not close Port.
func (l *Loop) Run() error {
	buf := make([]byte, readBufferSize)
	var lines LineBuffer
	detected := false

	for {
		select {
		case s, ok := <-l.Shutdown:
			if !ok {
				return nil
			}
			log.Debug().Stringer("reason", s.Reason).Msg("shutting down")
			if s.Reason == InputFailed {
				return s.Err
			}
			return nil
		default:
		}

		n, err := l.Port.Read(buf)
		if err != nil {
			return fmt.Errorf("read from device: %w", err)
		}
		if n == 0 {
			continue
		}
		lines.Write(buf[:n])

		for {
			line, ok := lines.Next()
			if !ok {
				break
			}
			if !utf8.Valid(line) {
				log.Debug().Hex("line", line).Msg("skipping line that is not valid UTF-8")
				continue
			}
			reading, ok := Match(string(line))
			if !ok {
				continue
			}
			if err := l.emit(reading); err != nil {
				return err
			}
			detected = true

			if l.Once && detected {
				return nil
			}
		}
	}
}

func (l *Loop) emit(r Reading) error {
	if _, err := fmt.Fprintln(l.Out, r.Format(l.Format)); err != nil {
		return fmt.Errorf("write reading: %w", err)
	}
	for _, p := range l.Publishers {
		if err := p.Publish(r); err != nil {
			log.Error().Err(err).Msg("failed to publish reading")
		}
	}
	return nil
}
