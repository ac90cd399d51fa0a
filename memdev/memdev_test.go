package memdev_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/soundout"
	"github.com/gen2brain/soundout/memdev"
)

var format = soundout.Format{SampleRate: 1000, Channels: 2}

func newBuffer(t *testing.T, drv *memdev.Driver, size int) soundout.Buffer {
	t.Helper()

	dev, err := drv.CreateDevice()
	require.NoError(t, err)

	buf, err := dev.CreateBuffer(format, size)
	require.NoError(t, err)

	return buf
}

func TestDevice(t *testing.T) {
	drv := memdev.New()

	dev, err := drv.CreateDevice()
	require.NoError(t, err)

	assert.Equal(t, soundout.CooperativeLevel(-1), drv.Level())
	require.NoError(t, dev.SetCooperativeLevel(soundout.CooperativeExclusive))
	assert.Equal(t, soundout.CooperativeExclusive, drv.Level())
	assert.Error(t, dev.SetCooperativeLevel(soundout.CooperativeLevel(9)))

	primary, err := dev.CreatePrimaryBuffer()
	require.NoError(t, err)
	require.NoError(t, primary.SetFormat(format))
	assert.Error(t, primary.SetFormat(soundout.Format{SampleRate: 44100, Channels: 6}))

	_, _, err = primary.Position()
	assert.Error(t, err, "the primary buffer has no cursors")
	_, _, err = primary.Lock(0, 4, 0)
	assert.Error(t, err)
	assert.Error(t, primary.Play(soundout.PlayLooping))

	_, err = dev.CreateBuffer(format, 0)
	assert.Error(t, err)
	_, err = dev.CreateBuffer(format, 6)
	assert.Error(t, err, "size must hold whole frames")

	secondary, err := dev.CreateBuffer(format, 400)
	require.NoError(t, err)
	assert.Error(t, secondary.SetFormat(format), "a secondary buffer format is fixed")

	require.NoError(t, secondary.Release())
	require.NoError(t, secondary.Release())
	require.NoError(t, primary.Release())
	require.NoError(t, dev.Release())
	require.NoError(t, dev.Release())

	assert.Equal(t, []string{memdev.NameSecondary, memdev.NamePrimary, memdev.NameDevice}, drv.Released())
}

func TestFail(t *testing.T) {
	errInjected := errors.New("injected")

	drv := memdev.New()
	drv.Fail(memdev.StepCreateDevice, errInjected)

	_, err := drv.CreateDevice()
	assert.ErrorIs(t, err, errInjected)
	assert.False(t, drv.Created(memdev.NameDevice))

	drv.Fail(memdev.StepCreateDevice, nil)

	_, err = drv.CreateDevice()
	assert.NoError(t, err)
	assert.True(t, drv.Created(memdev.NameDevice))
	assert.False(t, drv.Created("speaker"))
}

func TestLock(t *testing.T) {
	drv := memdev.New()
	buf := newBuffer(t, drv, 400)

	testCases := []struct {
		name   string
		offset int
		length int
		flags  soundout.LockFlags
		len1   int
		len2   int
	}{
		{"Start", 0, 100, 0, 100, 0},
		{"Middle", 100, 200, 0, 200, 0},
		{"ToEnd", 300, 100, 0, 100, 0},
		{"Wrap", 300, 150, 0, 100, 50},
		{"WholeWrap", 200, 400, 0, 200, 200},
		{"Entire", 123, 1, soundout.LockEntireBuffer, 400, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seg1, seg2, err := buf.Lock(tc.offset, tc.length, tc.flags)
			require.NoError(t, err)
			assert.Len(t, seg1, tc.len1)
			assert.Len(t, seg2, tc.len2)
			require.NoError(t, buf.Unlock(seg1, seg2))
		})
	}

	for _, bad := range [][2]int{{-1, 10}, {400, 10}, {0, 0}, {0, 401}} {
		_, _, err := buf.Lock(bad[0], bad[1], 0)
		assert.Error(t, err, "lock %d bytes at %d", bad[1], bad[0])
	}

	seg1, seg2, err := buf.Lock(0, 10, 0)
	require.NoError(t, err)
	assert.True(t, drv.Locked())

	_, _, err = buf.Lock(10, 10, 0)
	assert.Error(t, err, "one lock at a time")

	require.NoError(t, buf.Unlock(seg1, seg2))
	assert.Error(t, buf.Unlock(seg1, seg2), "not locked")
}

func TestLockWritesThrough(t *testing.T) {
	drv := memdev.New()
	buf := newBuffer(t, drv, 8)

	seg1, seg2, err := buf.Lock(6, 4, 0)
	require.NoError(t, err)
	copy(seg1, []byte{1, 2})
	copy(seg2, []byte{3, 4})
	require.NoError(t, buf.Unlock(seg1, seg2))

	assert.Equal(t, []byte{3, 4, 0, 0, 0, 0, 1, 2}, drv.Bytes())
}

func TestPosition(t *testing.T) {
	drv := memdev.New(memdev.WithWriteLead(40))
	buf := newBuffer(t, drv, 400)

	play, write, err := buf.Position()
	require.NoError(t, err)
	assert.Equal(t, 0, play)
	assert.Equal(t, 40, write)

	drv.Advance(380)
	play, write, err = buf.Position()
	require.NoError(t, err)
	assert.Equal(t, 380, play)
	assert.Equal(t, 20, write, "write cursor wraps")

	require.NoError(t, buf.SetPosition(100))
	assert.Equal(t, 100, drv.PlayCursor())
	assert.Error(t, buf.SetPosition(400))
	assert.Error(t, buf.SetPosition(-1))
}

func TestLoseBuffer(t *testing.T) {
	drv := memdev.New()
	buf := newBuffer(t, drv, 400)

	drv.LoseBuffer(2)

	_, _, err := buf.Lock(0, 10, 0)
	assert.ErrorIs(t, err, soundout.ErrBufferLost)
	assert.ErrorIs(t, buf.Play(soundout.PlayLooping), soundout.ErrBufferLost)
	require.NoError(t, buf.Restore())

	require.NoError(t, buf.Play(soundout.PlayLooping))

	stats := drv.Stats()
	assert.Equal(t, 2, stats.Lost)
	assert.Equal(t, 1, stats.Restores)
	assert.Equal(t, 2, stats.Plays)
}

func TestPlay(t *testing.T) {
	drv := memdev.New()
	buf := newBuffer(t, drv, 400)

	assert.Error(t, buf.Play(0), "only looping playback")
	assert.False(t, drv.Playing())

	require.NoError(t, buf.Play(soundout.PlayLooping))
	assert.True(t, drv.Playing())
	require.NoError(t, buf.Play(soundout.PlayLooping))

	require.NoError(t, buf.Stop())
	assert.False(t, drv.Playing())

	drv.Fail(memdev.StepStop, errors.New("busy"))
	assert.Error(t, buf.Stop())
}

func TestClock(t *testing.T) {
	// 4000 bytes per second, 40 bytes per tick.
	drv := memdev.New(memdev.WithClock(10 * time.Millisecond))
	buf := newBuffer(t, drv, 400)

	require.NoError(t, buf.Play(soundout.PlayLooping))

	assert.Eventually(t, func() bool {
		return drv.PlayCursor() != 0
	}, time.Second, 5*time.Millisecond, "play cursor moves while playing")

	require.NoError(t, buf.Stop())

	pos := drv.PlayCursor()
	assert.Zero(t, pos%40, "cursor moves in whole ticks")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, pos, drv.PlayCursor(), "cursor holds while stopped")

	require.NoError(t, buf.Play(soundout.PlayLooping))
	require.NoError(t, buf.Release())
	assert.False(t, drv.Playing(), "release stops the clock")
}

func TestSession(t *testing.T) {
	drv := memdev.New(memdev.WithClock(5 * time.Millisecond))

	s, err := soundout.New(drv, soundout.Config{SampleRate: 8000, Stereo: true, LatencyMs: 50})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.FillSilence()
	require.NoError(t, err)
	require.NoError(t, s.Play())

	gen := soundout.NewToneGenerator(s.Format(), 440, 3000)

	var total int
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		err := s.Write(soundout.WriteAll, func(lk *soundout.Locker) error {
			total += gen.Fill(lk)

			return nil
		})
		require.NoError(t, err)

		time.Sleep(2 * time.Millisecond)
	}

	assert.Greater(t, total, s.BufferSize(), "the producer keeps up with the clock")
	require.NoError(t, s.Stop(true))
	assert.Equal(t, make([]byte, s.BufferSize()), drv.Bytes())
}
