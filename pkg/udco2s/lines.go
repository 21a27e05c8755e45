package udco2s

import "bytes"

const maxPending = 4096

// LineBuffer collects bytes from successive reads and hands back complete
// lines. Lines are terminated by any run of \r and \n.
type LineBuffer struct {
	pending []byte
}

func (lb *LineBuffer) Write(p []byte) {
	lb.pending = append(lb.pending, p...)
	if over := len(lb.pending) - maxPending; over > 0 {
		lb.pending = append(lb.pending[:0], lb.pending[over:]...)
	}
}

// Next pops the oldest complete line, without its terminator.
func (lb *LineBuffer) Next() ([]byte, bool) {
	idx := bytes.IndexAny(lb.pending, "\r\n")
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, lb.pending[:idx])

	j := idx
	for j < len(lb.pending) && (lb.pending[j] == '\r' || lb.pending[j] == '\n') {
		j++
	}
	lb.pending = append(lb.pending[:0], lb.pending[j:]...)
	return line, true
}

func (lb *LineBuffer) Len() int {
	return len(lb.pending)
}
