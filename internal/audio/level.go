package audio

import "encoding/binary"

// Level returns the normalized peak amplitude of a little-endian int16
// chunk: max(|sample|) / 32768, in [0, 1].
func Level(chunk []byte) float64 {
	peak := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		s := int(int16(binary.LittleEndian.Uint16(chunk[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	level := float64(peak) / 32768.0
	if level > 1 {
		return 1
	}
	return level
}
