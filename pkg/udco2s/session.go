package udco2s

import (
	"errors"
	"fmt"
	"github.com/albenik/go-serial/v2"
	"github.com/rs/zerolog/log"
	"io"
	"sync"
	"time"
)

const (
	BaudRate    = 115200
	ReadTimeout = 10 * time.Second
)

type Command []byte

var (
	CommandStart = Command("STA\r\n")
	CommandStop  = Command("STP\r\n")
)

// Port is the part of a serial port the session needs. A read that times out
// returns 0, nil.
type Port interface {
	io.ReadWriteCloser
}

type PortOpener func(device string, baud int, timeout time.Duration) (Port, error)

func OpenSerialPort(device string, baud int, timeout time.Duration) (Port, error) {
	port, err := serial.Open(
		device,
		serial.WithBaudrate(baud),
		serial.WithReadTimeout(int(timeout/time.Millisecond)),
		serial.WithWriteTimeout(1000),
	)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Session is an open sensor port between the START and STOP commands.
type Session struct {
	port      Port
	device    string
	closeOnce sync.Once
	closeErr  error
}

// OpenSession opens device and asks the sensor to start streaming. If the
// START command cannot be written the port is closed again and no STOP is sent.
func OpenSession(open PortOpener, device string) (*Session, error) {
	port, err := open(device, BaudRate, ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if _, err := port.Write(CommandStart); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("send start command to %s: %w", device, err)
	}
	log.Debug().Str("device", device).Msg("sensor session started")
	return &Session{port: port, device: device}, nil
}

func (s *Session) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *Session) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close sends STOP and releases the port. Only the first call does anything.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var stopErr error
		if _, err := s.port.Write(CommandStop); err != nil {
			stopErr = fmt.Errorf("send stop command to %s: %w", s.device, err)
		}
		s.closeErr = errors.Join(stopErr, s.port.Close())
		log.Debug().Str("device", s.device).Err(s.closeErr).Msg("sensor session closed")
	})
	return s.closeErr
}
