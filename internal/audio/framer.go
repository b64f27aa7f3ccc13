package audio

import "encoding/binary"

// Framer regroups driver buffers of arbitrary length into fixed-size frames.
// It is not safe for concurrent use; each stream owns one.
type Framer struct {
	size    int
	pending []int16
	emit    func(Frame)
}

// NewFramer returns a Framer that calls emit with every complete frame of size samples.
func NewFramer(size int, emit func(Frame)) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{
		size:    size,
		pending: make([]int16, 0, size),
		emit:    emit,
	}
}

// WriteSamples appends samples and emits any frames that became complete.
func (f *Framer) WriteSamples(samples []int16) {
	for len(samples) > 0 {
		n := min(f.size-len(f.pending), len(samples))
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]
		f.flushFull()
	}
}

// WriteBytes appends S16LE PCM. A trailing odd byte is ignored.
func (f *Framer) WriteBytes(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		f.pending = append(f.pending, int16(binary.LittleEndian.Uint16(pcm[i:i+2])))
		f.flushFull()
	}
}

// Pending returns the number of samples waiting for a full frame.
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Reset drops any partial frame.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}

func (f *Framer) flushFull() {
	if len(f.pending) < f.size {
		return
	}
	frame := make(Frame, f.size)
	copy(frame, f.pending)
	f.pending = f.pending[:0]
	f.emit(frame)
}
