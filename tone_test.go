package soundout_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/soundout"
	"github.com/gen2brain/soundout/memdev"
)

func TestToneGenerator(t *testing.T) {
	format := soundout.Format{SampleRate: 8000, Channels: 1}

	// 2 kHz at 8 kHz is a quarter turn per sample.
	gen := soundout.NewToneGenerator(format, 2000, 1000)

	want := []int16{0, 1000, 0, -1000, 0, 1000}
	for i, w := range want {
		assert.InDelta(t, w, gen.Next(), 1, "sample %d", i)
	}
}

func TestToneGeneratorAmplitude(t *testing.T) {
	format := soundout.Format{SampleRate: 44100, Channels: 1}
	gen := soundout.NewToneGenerator(format, 440, 100000)

	var peak int16
	for range 44100 {
		v := gen.Next()
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}

	assert.LessOrEqual(t, peak, int16(32767))
	assert.Greater(t, peak, int16(32000), "amplitude is clamped to full scale")
}

func TestToneGeneratorRead(t *testing.T) {
	format := soundout.Format{SampleRate: 8000, Channels: 2}
	gen := soundout.NewToneGenerator(format, 2000, 1000)

	p := make([]int16, 9)
	n := gen.Read(p)
	require.Equal(t, 8, n, "only whole frames")

	for f := range 4 {
		assert.Equal(t, p[f*2], p[f*2+1], "both channels carry the same sample")
	}
	assert.InDelta(t, 1000, p[2], 1)
}

func TestToneGeneratorFill(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, stereoConfig)

	// The write cursor sits two bytes before the end, so the first frame wraps.
	moveWritePos(t, drv, s, 3198)
	drv.SetPlayCursor(42)

	gen := soundout.NewToneGenerator(s.Format(), 2000, 1000)

	var written int
	err := s.Write(soundout.WriteAll, func(lk *soundout.Locker) error {
		require.Equal(t, 2, lk.Len(soundout.First))
		written = gen.Fill(lk)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 44, written, "whole frames only")
	assert.Equal(t, 42, s.WritePos())

	data := drv.Bytes()
	sample := func(off int) int16 {
		return int16(uint16(data[off%3200]) | uint16(data[(off+1)%3200])<<8)
	}

	// Both channels of the first frame, on either side of the wrap.
	assert.Equal(t, sample(3198), sample(0))
	assert.InDelta(t, 1000, sample(2), 1)
	assert.InDelta(t, 1000, sample(4), 1)
	assert.Equal(t, int16(binary.LittleEndian.Uint16(data[2:])), sample(2))
}
