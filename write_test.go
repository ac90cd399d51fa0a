package soundout_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/soundout"
	"github.com/gen2brain/soundout/memdev"
)

// 8 kHz stereo with a 100 ms buffer: 800 frames, 3200 bytes.
var stereoConfig = soundout.Config{
	SampleRate: 8000,
	Stereo:     true,
	LatencyMs:  100,
}

func TestWrite(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, smallConfig)
	drv.SetPlayCursor(504)

	err := s.Write(200, func(lk *soundout.Locker) error {
		seg := lk.Segment(soundout.First)
		for i := range seg {
			seg[i] = 1
		}
		lk.SetWritten(120)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, soundout.SafetyOffset+120, s.WritePos())
	assert.False(t, drv.Locked())
}

func TestWriteFillError(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, smallConfig)
	drv.SetPlayCursor(504)

	errFill := errors.New("decoder failed")

	err := s.Write(200, func(lk *soundout.Locker) error {
		lk.SetWritten(0)

		return errFill
	})
	assert.ErrorIs(t, err, errFill)
	assert.Equal(t, soundout.SafetyOffset, s.WritePos())
	assert.False(t, drv.Locked(), "the lock is released on error")

	lk, err := s.BeginWrite(10)
	require.NoError(t, err)
	require.NoError(t, lk.Release())
}

func TestWriteFillPanic(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, smallConfig)
	drv.SetPlayCursor(504)

	assert.Panics(t, func() {
		_ = s.Write(200, func(lk *soundout.Locker) error {
			lk.SetWritten(0)
			panic("boom")
		})
	})
	assert.False(t, drv.Locked(), "the lock is released on panic")

	_, err := s.BeginWrite(10)
	assert.NotErrorIs(t, err, soundout.ErrLockOutstanding)
}

func TestWriteReleaseError(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, smallConfig)
	drv.SetPlayCursor(504)

	err := s.Write(200, func(lk *soundout.Locker) error {
		drv.Fail(memdev.StepUnlock, errors.New("invalid call"))

		return nil
	})
	assert.Error(t, err, "a failed release is reported")
	assert.Equal(t, soundout.SafetyOffset, s.WritePos())
}

func TestFillSilence(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, smallConfig)
	drv.SetPlayCursor(604)

	n, err := s.FillSilence()
	require.NoError(t, err)
	assert.Equal(t, 600, n)
	assert.Equal(t, 604, s.WritePos())

	n, err = s.FillSilence()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing left to write")
}

func TestFillSilenceZeroes(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, smallConfig)

	moveWritePos(t, drv, s, 900)

	drv.SetPlayCursor(100)
	err := s.Write(soundout.WriteAll, func(lk *soundout.Locker) error {
		for _, i := range []soundout.SegmentIndex{soundout.First, soundout.Second} {
			seg := lk.Segment(i)
			for j := range seg {
				seg[j] = 0xFF
			}
		}

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 100, s.WritePos())

	moveWritePos(t, drv, s, 900)
	drv.SetPlayCursor(100)

	n, err := s.FillSilence()
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Equal(t, 100, s.WritePos())
	assert.Equal(t, make([]byte, 200), append(drv.Bytes()[900:], drv.Bytes()[:100]...))
}

func TestLockerInt16(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, soundout.Config{SampleRate: 10000, LatencyMs: 50})

	moveWritePos(t, drv, s, 900)
	drv.SetPlayCursor(100)

	lk, err := s.BeginWrite(200)
	require.NoError(t, err)

	first := lk.Int16(soundout.First)
	second := lk.Int16(soundout.Second)
	require.Len(t, first, 50)
	require.Len(t, second, 50)

	first[0] = 0x1234
	second[49] = -2

	require.NoError(t, lk.Release())

	data := drv.Bytes()
	assert.Equal(t, uint16(0x1234), binary.NativeEndian.Uint16(data[900:]))
	assert.Equal(t, uint16(0xFFFE), binary.NativeEndian.Uint16(data[98:]))
}

func TestWritePCM(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, stereoConfig)
	require.Equal(t, 3200, s.BufferSize())

	// Room for 100 frames.
	drv.SetPlayCursor(soundout.SafetyOffset + 400)

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:   make([]int, 300),
	}
	for i := range buf.Data {
		buf.Data[i] = i - 150
	}

	frames, err := s.WritePCM(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, frames)
	assert.Equal(t, soundout.SafetyOffset+400, s.WritePos())

	data := drv.Bytes()[soundout.SafetyOffset:]
	for i := range 200 {
		assert.Equal(t, int16(i-150), int16(binary.LittleEndian.Uint16(data[i*2:])), "sample %d", i)
	}

	frames, err = s.WritePCM(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, frames, "buffer is full")
}

func TestWritePCMScaling(t *testing.T) {
	testCases := []struct {
		name     string
		bitDepth int
		in       int
		want     int16
	}{
		{"Unset", 0, 1000, 1000},
		{"16Bit", 16, -1000, -1000},
		{"8Bit", 8, 100, 25600},
		{"24Bit", 24, 0x123456, 0x1234},
		{"32Bit", 32, -0x40000000, -0x4000},
		{"ClampHigh", 16, 40000, 32767},
		{"ClampLow", 16, -40000, -32768},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			drv := memdev.New()
			s := openSession(t, drv, smallConfig)
			drv.SetPlayCursor(500)

			frames, err := s.WritePCM(&audio.IntBuffer{
				Format:         &audio.Format{NumChannels: 1, SampleRate: 10000},
				Data:           []int{tc.in},
				SourceBitDepth: tc.bitDepth,
			})
			require.NoError(t, err)
			require.Equal(t, 1, frames)

			data := drv.Bytes()
			assert.Equal(t, tc.want, int16(binary.LittleEndian.Uint16(data[soundout.SafetyOffset:])))
		})
	}
}

func TestToInt16(t *testing.T) {
	tests := []struct {
		v, bitDepth int
		want        int16
	}{
		{1000, 0, 1000},
		{40000, 16, 32767},
		{-40000, 16, -32768},
		{0x7fff00, 24, 0x7fff},
		{-256, 24, -1},
		{127, 8, 127 << 8},
		{200, 8, 32767},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, soundout.ToInt16(tt.v, tt.bitDepth))
	}
}

func TestWritePCMInvalid(t *testing.T) {
	drv := memdev.New()
	s := openSession(t, drv, stereoConfig)

	_, err := s.WritePCM(nil)
	assert.Error(t, err)

	_, err = s.WritePCM(&audio.IntBuffer{Data: []int{1, 2}})
	assert.Error(t, err, "missing format")

	_, err = s.WritePCM(&audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:   []int{1, 2},
	})
	assert.Error(t, err, "channel mismatch")

	frames, err := s.WritePCM(&audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:   []int{1},
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, frames, "a partial frame is not written")
}

func TestWritePCMFromWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	gen := soundout.NewToneGenerator(stereoConfig.Format(), 440, 8000)
	samples := make([]int16, 2*256)
	require.Equal(t, len(samples), gen.Read(samples))

	in := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, v := range samples {
		in.Data[i] = int(v)
	}

	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	require.NoError(t, enc.Write(in))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())

	pcm, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, pcm.Data, len(samples))

	drv := memdev.New()
	s := openSession(t, drv, stereoConfig)
	drv.SetPlayCursor(soundout.SafetyOffset + 2000)

	frames, err := s.WritePCM(pcm)
	require.NoError(t, err)
	assert.Equal(t, 256, frames)

	data := drv.Bytes()[soundout.SafetyOffset:]
	for i, v := range samples {
		require.Equal(t, v, int16(binary.LittleEndian.Uint16(data[i*2:])), "sample %d", i)
	}
}
