package alsa

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamInit(t *testing.T) {
	var p sndPcmHwParams
	paramInit(&p)

	pp := &PcmParams{params: &p}
	assert.True(t, pp.MmapIsSupported())
	assert.True(t, pp.FormatIsSupported(SNDRV_PCM_FORMAT_S16_LE))

	rangeMax, err := pp.RangeMax(SNDRV_PCM_HW_PARAM_RATE)
	require.NoError(t, err)
	assert.Equal(t, ^uint32(0), rangeMax)

	_, err = pp.RangeMin(SNDRV_PCM_HW_PARAM_FORMAT)
	assert.Error(t, err, "format is a mask parameter")
}

func TestParamSetMask(t *testing.T) {
	var p sndPcmHwParams
	paramInit(&p)

	paramSetMask(&p, SNDRV_PCM_HW_PARAM_FORMAT, uint32(SNDRV_PCM_FORMAT_S24_3LE))

	pp := &PcmParams{params: &p}
	assert.True(t, pp.FormatIsSupported(SNDRV_PCM_FORMAT_S24_3LE))
	assert.False(t, pp.FormatIsSupported(SNDRV_PCM_FORMAT_S16_LE))
	assert.Equal(t, uint32(1), p.Masks[SNDRV_PCM_HW_PARAM_FORMAT].Bits[1])

	// Interval parameters and out of range bits are ignored.
	paramSetMask(&p, SNDRV_PCM_HW_PARAM_RATE, 1)
	paramSetMask(&p, SNDRV_PCM_HW_PARAM_FORMAT, sndMaskMax)
	assert.True(t, pp.FormatIsSupported(SNDRV_PCM_FORMAT_S24_3LE))
	assert.False(t, pp.Supports(SNDRV_PCM_HW_PARAM_FORMAT, sndMaskMax))
}

func TestParamSetInt(t *testing.T) {
	var p sndPcmHwParams
	paramInit(&p)

	paramSetInt(&p, SNDRV_PCM_HW_PARAM_RATE, 48000)
	paramSetMin(&p, SNDRV_PCM_HW_PARAM_PERIODS, 2)

	assert.Equal(t, uint32(48000), paramGetInt(&p, SNDRV_PCM_HW_PARAM_RATE))
	assert.Equal(t, uint32(SNDRV_PCM_INTERVAL_INTEGER), p.Intervals[SNDRV_PCM_HW_PARAM_RATE-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].Flags)
	assert.False(t, paramIsEmpty(&p, SNDRV_PCM_HW_PARAM_RATE))

	pp := &PcmParams{params: &p}
	rangeMin, err := pp.RangeMin(SNDRV_PCM_HW_PARAM_PERIODS)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), rangeMin)

	p.Intervals[SNDRV_PCM_HW_PARAM_CHANNELS-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].Flags |= SNDRV_PCM_INTERVAL_EMPTY
	assert.True(t, paramIsEmpty(&p, SNDRV_PCM_HW_PARAM_CHANNELS))

	p.Intervals[SNDRV_PCM_HW_PARAM_BUFFER_SIZE-SNDRV_PCM_HW_PARAM_SAMPLE_BITS] = sndInterval{MinVal: 10, MaxVal: 5}
	assert.True(t, paramIsEmpty(&p, SNDRV_PCM_HW_PARAM_BUFFER_SIZE))
	assert.True(t, paramIsEmpty(&p, SNDRV_PCM_HW_PARAM_ACCESS))
}

func TestPcmParamsString(t *testing.T) {
	var p sndPcmHwParams
	paramInit(&p)

	paramSetMask(&p, SNDRV_PCM_HW_PARAM_ACCESS, SNDRV_PCM_ACCESS_MMAP_INTERLEAVED)
	paramSetMask(&p, SNDRV_PCM_HW_PARAM_FORMAT, uint32(SNDRV_PCM_FORMAT_S16_LE))
	p.Intervals[SNDRV_PCM_HW_PARAM_RATE-SNDRV_PCM_HW_PARAM_SAMPLE_BITS] = sndInterval{MinVal: 8000, MaxVal: 192000}
	paramSetInt(&p, SNDRV_PCM_HW_PARAM_CHANNELS, 2)

	s := (&PcmParams{params: &p}).String()
	assert.Contains(t, s, "Access: MMAP_INTERLEAVED\n")
	assert.Contains(t, s, "Format: S16_LE\n")
	assert.Contains(t, s, "Rate: min=8000   max=192000 Hz")
	assert.Contains(t, s, "Channels: min=2      max=2")
	assert.NotContains(t, s, "Periods", "unbounded ranges are not printed")

	assert.Equal(t, "<nil>", (*PcmParams)(nil).String())
}

func TestBoundary(t *testing.T) {
	for _, frames := range []SndPcmUframesT{1, 441, 4410, 16384} {
		b := boundary(frames)

		assert.Zero(t, b%frames, "boundary is a multiple of the buffer size")
		assert.LessOrEqual(t, b, SndPcmUframesT(maxSframes)-frames)
		assert.Greater(t, b*2, SndPcmUframesT(maxSframes)-frames, "boundary is the largest such multiple")
	}
}

func TestKernelLayout(t *testing.T) {
	assert.Equal(t, uintptr(64), unsafe.Sizeof(sndPcmSyncPtr{}.S))
	assert.Equal(t, uintptr(64), unsafe.Sizeof(sndPcmSyncPtr{}.C))
	assert.Equal(t, uintptr(288), unsafe.Sizeof(sndPcmInfo{}))

	if math.MaxUint == math.MaxUint64 {
		assert.Equal(t, uintptr(136), unsafe.Sizeof(sndPcmSwParams{}))
		assert.Equal(t, uintptr(136), unsafe.Sizeof(sndPcmSyncPtr{}))
		assert.Equal(t, uintptr(608), unsafe.Sizeof(sndPcmHwParams{}))
	}
}
