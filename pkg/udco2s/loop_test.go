package udco2s

import (
	"bytes"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

const sampleLine = "CO2=637,HUM=56.5,TMP=29.7\r\n"

// runLoop runs a loop over port inside a session, closing it the way the
// command does, and returns what was printed.
func runLoop(t *testing.T, port *fakePort, loop Loop) (string, error) {
	t.Helper()
	session, err := OpenSession(openerFor(port), "/dev/ttyACM0")
	require.NoError(t, err)

	var out bytes.Buffer
	loop.Port = session
	if loop.Out == nil {
		loop.Out = &out
	}
	if loop.Shutdown == nil {
		loop.Shutdown = NewShutdownWatcher().Done()
	}

	done := make(chan error, 1)
	go func() {
		err := loop.Run()
		_ = session.Close()
		done <- err
	}()

	select {
	case err := <-done:
		return out.String(), err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not terminate")
	}
	return "", nil
}

// shutdownWhenDrained ends the loop with EndOfInput once the port has no more
// scripted reads.
func shutdownWhenDrained(port *fakePort) <-chan Shutdown {
	w := NewShutdownWatcher()
	port.onDrained = func() { w.notify(Shutdown{Reason: EndOfInput}) }
	return w.Done()
}

func TestLoopPrintsKV(t *testing.T) {
	port := newFakePort(sampleLine)
	out, err := runLoop(t, port, Loop{Format: FormatKV, Shutdown: shutdownWhenDrained(port)})

	require.NoError(t, err)
	assert.Equal(t, "CO2=637,HUM=56.5,TMP=29.7\n", out)
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

func TestLoopPrintsJSON(t *testing.T) {
	port := newFakePort(sampleLine)
	out, err := runLoop(t, port, Loop{Format: FormatJSON, Shutdown: shutdownWhenDrained(port)})

	require.NoError(t, err)
	assert.Equal(t, `{"CO2":637,"HUM":56.5,"TMP":29.7}`+"\n", out)
}

func TestLoopIgnoresNoise(t *testing.T) {
	port := newFakePort("NOISE\r\n", "CO2=abc\r\n", "\xff\xfe\r\n")
	out, err := runLoop(t, port, Loop{Format: FormatKV, Shutdown: shutdownWhenDrained(port)})

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

func TestLoopStopsOnEndOfInput(t *testing.T) {
	port := newFakePort()
	w := NewShutdownWatcher()
	w.WatchInput(strings.NewReader(""))

	out, err := runLoop(t, port, Loop{Format: FormatKV, Shutdown: w.Done()})

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

func TestLoopChecksShutdownBeforeReading(t *testing.T) {
	port := newFakePort(sampleLine)
	w := NewShutdownWatcher()
	w.notify(Shutdown{Reason: Interrupted})

	out, err := runLoop(t, port, Loop{Format: FormatKV, Shutdown: w.Done()})

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, port.remaining())
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

func TestLoopOnceEmitsOnlyFirstReading(t *testing.T) {
	port := newFakePort(
		"CO2=637,HUM=56.5,TMP=29.7\r\nCO2=640,HUM=56.6,TMP=29.8\r\n",
		"CO2=650,HUM=57.0,TMP=30.0\r\n",
	)
	out, err := runLoop(t, port, Loop{Format: FormatKV, Once: true})

	require.NoError(t, err)
	assert.Equal(t, "CO2=637,HUM=56.5,TMP=29.7\n", out)
	assert.Equal(t, 1, port.remaining())
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

func TestLoopOnceWaitsForFirstMatch(t *testing.T) {
	port := newFakePort("NOISE\r\n", "", "CO2=1200,HUM=40.0,TMP=22.5\r\n", sampleLine)
	out, err := runLoop(t, port, Loop{Format: FormatJSON, Once: true})

	require.NoError(t, err)
	assert.Equal(t, `{"CO2":1200,"HUM":40.0,"TMP":22.5}`+"\n", out)
	assert.Equal(t, 1, port.remaining())
}

func TestLoopReassemblesSplitLines(t *testing.T) {
	port := newFakePort("CO2=637,HU", "M=56.5,TMP=2", "9.7\r", "\nCO2=638,HUM=56.4,TMP=29.6\r\n")
	out, err := runLoop(t, port, Loop{Format: FormatKV, Shutdown: shutdownWhenDrained(port)})

	require.NoError(t, err)
	assert.Equal(t, "CO2=637,HUM=56.5,TMP=29.7\nCO2=638,HUM=56.4,TMP=29.6\n", out)
}

func TestLoopReadFailureStillSendsStop(t *testing.T) {
	port := newFakePort(sampleLine)
	port.reads = append(port.reads, fakeRead{err: errors.New("device disconnected")})

	out, err := runLoop(t, port, Loop{Format: FormatKV})

	assert.ErrorContains(t, err, "device disconnected")
	assert.Equal(t, "CO2=637,HUM=56.5,TMP=29.7\n", out)
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

func TestLoopInputFailureStillSendsStop(t *testing.T) {
	port := newFakePort()
	w := NewShutdownWatcher()
	w.WatchInput(&failingReader{err: errors.New("bad file descriptor")})

	_, err := runLoop(t, port, Loop{Format: FormatKV, Shutdown: w.Done()})

	assert.ErrorContains(t, err, "bad file descriptor")
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestLoopOutputFailureIsFatal(t *testing.T) {
	port := newFakePort(sampleLine, sampleLine)
	_, err := runLoop(t, port, Loop{Format: FormatKV, Out: errWriter{}})

	assert.ErrorContains(t, err, "broken pipe")
	assert.Equal(t, 1, port.remaining())
	assert.Equal(t, "STA\r\nSTP\r\n", port.Written())
}

type recordingPublisher struct {
	got []Reading
	err error
}

func (p *recordingPublisher) Publish(r Reading) error {
	p.got = append(p.got, r)
	return p.err
}

func TestLoopPublishesReadings(t *testing.T) {
	port := newFakePort(sampleLine, "NOISE\r\n", "CO2=700,HUM=50.0,TMP=25.0\r\n")
	failing := &recordingPublisher{err: errors.New("broker unavailable")}
	ok := &recordingPublisher{}

	out, err := runLoop(t, port, Loop{
		Format:     FormatKV,
		Shutdown:   shutdownWhenDrained(port),
		Publishers: []Publisher{failing, ok},
	})

	require.NoError(t, err)
	assert.Equal(t, "CO2=637,HUM=56.5,TMP=29.7\nCO2=700,HUM=50.0,TMP=25.0\n", out)
	want := []Reading{{"637", "56.5", "29.7"}, {"700", "50.0", "25.0"}}
	assert.Equal(t, want, failing.got)
	assert.Equal(t, want, ok.got)
}
