package audio

import (
	"encoding/binary"
	"testing"
)

func TestFramerWriteSamplesSplitsAcrossCalls(t *testing.T) {
	var frames []Frame
	f := NewFramer(4, func(fr Frame) { frames = append(frames, fr) })

	f.WriteSamples([]int16{1, 2, 3})
	if len(frames) != 0 {
		t.Fatalf("expected no frames yet, got %d", len(frames))
	}
	f.WriteSamples([]int16{4, 5, 6, 7, 8, 9})

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	want := [][]int16{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i := range want {
		for j := range want[i] {
			if frames[i][j] != want[i][j] {
				t.Fatalf("frame %d sample %d: expected %d, got %d", i, j, want[i][j], frames[i][j])
			}
		}
	}
	if f.Pending() != 1 {
		t.Fatalf("expected 1 pending sample, got %d", f.Pending())
	}
}

func TestFramerFramesAreIndependentCopies(t *testing.T) {
	var frames []Frame
	f := NewFramer(2, func(fr Frame) { frames = append(frames, fr) })

	in := []int16{10, 20, 30, 40}
	f.WriteSamples(in)
	in[0] = 99

	if frames[0][0] != 10 {
		t.Fatalf("frame shares memory with the input, got %d", frames[0][0])
	}
	if &frames[0][0] == &frames[1][0] {
		t.Fatal("expected each frame to have its own backing array")
	}
}

func TestFramerWriteBytesLittleEndian(t *testing.T) {
	var frames []Frame
	f := NewFramer(3, func(fr Frame) { frames = append(frames, fr) })

	samples := []int16{-32768, 0, 32767}
	pcm := make([]byte, 0, len(samples)*2+1)
	for _, s := range samples {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
	}
	pcm = append(pcm, 0x7f) // stray odd byte

	f.WriteBytes(pcm)

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	for i, s := range samples {
		if frames[0][i] != s {
			t.Fatalf("sample %d: expected %d, got %d", i, s, frames[0][i])
		}
	}
}

func TestFramerReset(t *testing.T) {
	f := NewFramer(4, func(Frame) { t.Fatal("no frame expected") })
	f.WriteSamples([]int16{1, 2})
	f.Reset()
	if f.Pending() != 0 {
		t.Fatalf("expected empty framer after reset, got %d pending", f.Pending())
	}
}

func TestFramerDefaultSize(t *testing.T) {
	count := 0
	f := NewFramer(0, func(fr Frame) {
		count++
		if len(fr) != FrameSamples {
			t.Fatalf("expected %d samples, got %d", FrameSamples, len(fr))
		}
	})
	f.WriteSamples(make([]int16, FrameSamples*2))
	if count != 2 {
		t.Fatalf("expected 2 frames, got %d", count)
	}
}
