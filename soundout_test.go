package soundout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gen2brain/soundout"
)

func TestFormat(t *testing.T) {
	testCases := []struct {
		format     soundout.Format
		blockAlign int
		byteRate   int
		buffer100  int
	}{
		{soundout.Format{SampleRate: 44100, Channels: 1}, 2, 88200, 8820},
		{soundout.Format{SampleRate: 44100, Channels: 2}, 4, 176400, 17640},
		{soundout.Format{SampleRate: 48000, Channels: 2}, 4, 192000, 19200},
		{soundout.Format{SampleRate: 22050, Channels: 2}, 4, 88200, 8820},
	}

	for _, tc := range testCases {
		t.Run(tc.format.String(), func(t *testing.T) {
			assert.Equal(t, tc.blockAlign, tc.format.BlockAlign())
			assert.Equal(t, tc.byteRate, tc.format.AvgBytesPerSec())
			assert.Equal(t, tc.buffer100, tc.format.BufferBytes(100))
			assert.Zero(t, tc.format.BufferBytes(100)%tc.format.BlockAlign(), "buffer holds whole frames")
			assert.Equal(t, 10, tc.format.BytesToFrames(10*tc.blockAlign+1))
		})
	}

	assert.Equal(t, 0, soundout.Format{}.BytesToFrames(100))
	assert.Equal(t, "44100 Hz, 2 ch, S16_LE", soundout.Format{SampleRate: 44100, Channels: 2}.String())
}

func TestConfig(t *testing.T) {
	mono := soundout.Config{SampleRate: 44100, LatencyMs: 100}
	assert.Equal(t, soundout.Format{SampleRate: 44100, Channels: 1}, mono.Format())
	assert.NoError(t, mono.Validate())

	stereo := soundout.Config{SampleRate: 44100, Stereo: true, LatencyMs: 100}
	assert.Equal(t, 2, stereo.Format().Channels)
	assert.NoError(t, stereo.Validate())

	assert.Error(t, soundout.Config{LatencyMs: 100}.Validate())
	assert.Error(t, soundout.Config{SampleRate: 44100, LatencyMs: -1}.Validate())
	assert.Error(t, soundout.Config{SampleRate: 500, LatencyMs: 1}.Validate())
}

func TestCooperativeLevelString(t *testing.T) {
	assert.Equal(t, "normal", soundout.CooperativeNormal.String())
	assert.Equal(t, "priority", soundout.CooperativePriority.String())
	assert.Equal(t, "exclusive", soundout.CooperativeExclusive.String())
	assert.Equal(t, "unknown", soundout.CooperativeLevel(7).String())
}
