package audio

// Level is the peak absolute amplitude of one frame, in 0..32768.
type Level int

// PeakLevel returns the largest absolute sample value in f.
func PeakLevel(f Frame) Level {
	peak := 0
	for _, s := range f {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return Level(peak)
}
