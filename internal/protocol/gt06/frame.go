package gt06

import (
	"bytes"
	"errors"
)

var (
	startMarker = []byte{StartByte1, StartByte2}
	stopMarker  = []byte{EndByte1, EndByte2}
)

// ErrBufferOverflow is returned by Reassembler.Feed when unterminated data exceeds the configured limit.
var ErrBufferOverflow = errors.New("gt06: reassembly buffer overflow")

// ScanFrames is a bufio.SplitFunc that yields GT06 frames from start marker to stop marker inclusive.
// Bytes ahead of the first start marker are discarded. A frame whose stop marker has not arrived yet
// is kept for the next call. The declared length is trusted first: while its span has not fully
// arrived the data is kept, and when the span ends on a stop marker it is the frame, so stop-marker
// bytes inside a payload do not cut the frame short. Otherwise the first stop marker ends the frame.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, startMarker)
	if start < 0 {
		// Keep a trailing first half of a start marker.
		if n := len(data); n > 0 && data[n-1] == StartByte1 && !atEOF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	if start+2 < len(data) {
		end := start + int(data[start+2]) + frameOverhead
		if end > len(data) && !atEOF {
			return start, nil, nil
		}
		if end <= len(data) && bytes.Equal(data[end-2:end], stopMarker) {
			return end, data[start:end], nil
		}
	}

	stop := bytes.Index(data[start+2:], stopMarker)
	if stop < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end := start + 2 + stop + 2
	return end, data[start:end], nil
}

// Reassembler accumulates bytes read from a device stream and splits them into frames.
type Reassembler struct {
	buf []byte
	max int
}

// NewReassembler returns a Reassembler that holds at most maxBuffered unterminated bytes.
// A non-positive limit disables the check.
func NewReassembler(maxBuffered int) *Reassembler {
	return &Reassembler{max: maxBuffered}
}

// Feed appends p to the pending bytes and returns every complete frame in arrival order.
// Returned frames do not alias the internal buffer.
func (r *Reassembler) Feed(p []byte) ([][]byte, error) {
	r.buf = append(r.buf, p...)

	var frames [][]byte
	for len(r.buf) > 0 {
		advance, token, _ := ScanFrames(r.buf, false)
		if token != nil {
			frames = append(frames, bytes.Clone(token))
		}
		if advance == 0 {
			break
		}
		r.buf = r.buf[advance:]
		if token == nil {
			break
		}
	}

	// compact so the backing array does not grow without bound
	if len(r.buf) == 0 {
		r.buf = r.buf[:0:0]
	} else {
		r.buf = append([]byte(nil), r.buf...)
	}

	if r.max > 0 && len(r.buf) > r.max {
		r.buf = nil
		return frames, ErrBufferOverflow
	}
	return frames, nil
}

// Buffered returns the number of bytes retained while waiting for a stop marker.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Reset drops any retained bytes.
func (r *Reassembler) Reset() {
	r.buf = nil
}
