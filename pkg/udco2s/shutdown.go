package udco2s

import (
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"io"
	"os"
	"os/signal"
	"sync"
)

type ShutdownReason int

const (
	EndOfInput ShutdownReason = iota
	Interrupted
	InputFailed
)

func (r ShutdownReason) String() string {
	switch r {
	case EndOfInput:
		return "end of input"
	case Interrupted:
		return "interrupted"
	case InputFailed:
		return "input failed"
	}
	return fmt.Sprintf("ShutdownReason(%d)", int(r))
}

// Shutdown asks the poll loop to stop. Err is only set for InputFailed.
type Shutdown struct {
	Reason ShutdownReason
	Err    error
}

// ShutdownWatcher delivers at most one Shutdown, from whichever source fires
// first. The channel is closed right after the delivery.
type ShutdownWatcher struct {
	ch   chan Shutdown
	once sync.Once
}

func NewShutdownWatcher() *ShutdownWatcher {
	return &ShutdownWatcher{ch: make(chan Shutdown, 1)}
}

func (w *ShutdownWatcher) Done() <-chan Shutdown {
	return w.ch
}

func (w *ShutdownWatcher) notify(s Shutdown) {
	w.once.Do(func() {
		w.ch <- s
		close(w.ch)
	})
}

// WatchInput drains r in the background and signals EndOfInput once it is
// exhausted. Content is discarded. The goroutine exits after signalling.
func (w *ShutdownWatcher) WatchInput(r io.Reader) {
	go func() {
		buf := make([]byte, 32)
		for {
			n, err := r.Read(buf)
			if err == nil {
				if n == 0 {
					// zero bytes is end of stream too
					w.notify(Shutdown{Reason: EndOfInput})
					return
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("control input reached end of stream")
				w.notify(Shutdown{Reason: EndOfInput})
				return
			}
			w.notify(Shutdown{Reason: InputFailed, Err: fmt.Errorf("read control input: %w", err)})
			return
		}
	}()
}

// WatchSignals signals Interrupted on the first of sig. The returned func
// stops listening; it must be called once the watcher is no longer needed.
func (w *ShutdownWatcher) WatchSignals(sig ...os.Signal) (stop func()) {
	sigs := make(chan os.Signal, 1)
	quit := make(chan struct{})
	signal.Notify(sigs, sig...)
	go func() {
		select {
		case s := <-sigs:
			log.Debug().Str("signal", s.String()).Msg("received signal")
			w.notify(Shutdown{Reason: Interrupted})
		case <-quit:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(quit)
		})
	}
}
