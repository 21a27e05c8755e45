package udco2s

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

type fakeRead struct {
	data []byte
	err  error
}

// fakePort replays scripted reads. Once the script is used up every read
// behaves like a timeout and onDrained is called.
type fakePort struct {
	mu        sync.Mutex
	reads     []fakeRead
	timeouts  int
	written   bytes.Buffer
	writeErr  error
	closed    int
	onDrained func()
}

func newFakePort(chunks ...string) *fakePort {
	p := &fakePort{}
	for _, c := range chunks {
		p.reads = append(p.reads, fakeRead{data: []byte(c)})
	}
	return p
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.reads) == 0 {
		p.timeouts++
		drained := p.onDrained
		p.mu.Unlock()
		if drained != nil {
			drained()
		}
		return 0, nil
	}
	r := p.reads[0]
	p.reads = p.reads[1:]
	p.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	return copy(b, r.data), nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed > 0 {
		return 0, errors.New("port closed")
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *fakePort) remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reads)
}

func openerFor(p *fakePort) PortOpener {
	return func(device string, baud int, timeout time.Duration) (Port, error) {
		return p, nil
	}
}
