package audio

import "time"

const (
	// SampleRate, Channels and BitDepth describe the only capture format the
	// dataset accepts: mono 16-bit PCM at 44.1 kHz.
	SampleRate = 44100
	Channels   = 1
	BitDepth   = 16

	// FramesPerChunk is the number of samples delivered per capture read.
	FramesPerChunk = 1024
)

type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func DefaultFormat() Format {
	return Format{SampleRate: SampleRate, Channels: Channels, BitDepth: BitDepth}
}

// BytesPerFrame is the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

func (f Format) valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0 && f.BitDepth%8 == 0
}

// Take is the audio captured between one start and stop. The capture
// goroutine is its only writer; once Stop returns it is read-only.
type Take struct {
	Frames [][]byte
	Format Format
}

func (t *Take) Empty() bool {
	if t == nil {
		return true
	}
	for _, f := range t.Frames {
		if len(f) > 0 {
			return false
		}
	}
	return true
}

// Samples returns the number of sample frames in the take.
func (t *Take) Samples() int {
	if t == nil || t.Format.BytesPerFrame() == 0 {
		return 0
	}
	n := 0
	for _, f := range t.Frames {
		n += len(f)
	}
	return n / t.Format.BytesPerFrame()
}

func (t *Take) Duration() time.Duration {
	if t == nil || t.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(t.Samples()) * time.Second / time.Duration(t.Format.SampleRate)
}

// Peak is the highest chunk level seen in the take.
func (t *Take) Peak() float64 {
	if t == nil {
		return 0
	}
	peak := 0.0
	for _, f := range t.Frames {
		if l := Level(f); l > peak {
			peak = l
		}
	}
	return peak
}
