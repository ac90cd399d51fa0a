package soundout

import "math"

// ToneGenerator synthesizes a sine tone with the same sample on every channel.
type ToneGenerator struct {
	format    Format
	amplitude float64
	step      float64
	phase     float64
}

// NewToneGenerator creates a generator of a hz tone at the given peak amplitude (0..32767).
func NewToneGenerator(format Format, hz, amplitude float64) *ToneGenerator {
	return &ToneGenerator{
		format:    format,
		amplitude: math.Max(0, math.Min(amplitude, math.MaxInt16)),
		step:      hz * 2 * math.Pi / float64(format.SampleRate),
	}
}

// Next returns the next sample and advances the phase by one frame.
func (g *ToneGenerator) Next() int16 {
	v := int16(g.amplitude * math.Sin(g.phase))

	g.phase += g.step
	if g.phase >= 2*math.Pi {
		g.phase -= 2 * math.Pi
	}

	return v
}

// Fill writes whole frames into both segments of lk, sets the written byte count and returns it.
func (g *ToneGenerator) Fill(lk *Locker) int {
	frames := lk.Size() / g.format.BlockAlign()

	w := sampleWriter{lk: lk}
	for range frames {
		v := g.Next()
		for range g.format.Channels {
			w.put(v)
		}
	}

	lk.SetWritten(w.pos)

	return w.pos
}

// Read fills p with interleaved samples and returns the number of samples written.
func (g *ToneGenerator) Read(p []int16) int {
	frames := len(p) / g.format.Channels

	for f := range frames {
		v := g.Next()
		for c := range g.format.Channels {
			p[f*g.format.Channels+c] = v
		}
	}

	return frames * g.format.Channels
}
