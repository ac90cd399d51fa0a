package alsa

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pcm is a memory-mapped playback stream whose buffer the hardware plays in a loop.
type pcm struct {
	file      *os.File
	frames    SndPcmUframesT // buffer size in frames
	frameSize int
	boundary  SndPcmUframesT
	area      []byte
	sync      sndPcmSyncPtr
}

// openStream opens the playback node of card and device and configures an interleaved S16_LE
// stream with a buffer of exactly frames frames.
func openStream(card, device uint, rate, channels uint32, frames int) (*pcm, error) {
	file, err := openPlayback(card, device)
	if err != nil {
		return nil, err
	}

	p := &pcm{
		file:      file,
		frames:    SndPcmUframesT(frames),
		frameSize: int(channels) * 2,
	}

	if err := p.setParams(rate, channels); err != nil {
		_ = p.close()

		return nil, err
	}

	area, err := unix.Mmap(int(file.Fd()), 0, frames*p.frameSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = p.close()

		return nil, fmt.Errorf("mmap data buffer failed: %w", err)
	}

	p.area = area

	if err := p.syncPtr(false); err != nil {
		_ = p.close()

		return nil, fmt.Errorf("ioctl SYNC_PTR failed: %w", err)
	}

	return p, nil
}

func (p *pcm) setParams(rate, channels uint32) error {
	hwParams := &sndPcmHwParams{}
	paramInit(hwParams)

	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_ACCESS, SNDRV_PCM_ACCESS_MMAP_INTERLEAVED)
	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_FORMAT, uint32(SNDRV_PCM_FORMAT_S16_LE))
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_CHANNELS, channels)
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_RATE, rate)
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_BUFFER_SIZE, uint32(p.frames))
	paramSetMin(hwParams, SNDRV_PCM_HW_PARAM_PERIODS, 2)

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_HW_PARAMS, uintptr(unsafe.Pointer(hwParams))); err != nil {
		return fmt.Errorf("ioctl HW_PARAMS failed for a %d frame buffer: %w", p.frames, err)
	}

	if got := paramGetInt(hwParams, SNDRV_PCM_HW_PARAM_BUFFER_SIZE); SndPcmUframesT(got) != p.frames {
		return fmt.Errorf("driver chose a %d frame buffer instead of %d: %w", got, p.frames, unix.EINVAL)
	}

	p.boundary = boundary(p.frames)

	// Thresholds at the boundary keep the stream running over stale data instead of stopping
	// on underrun, and leave starting it to Play.
	swParams := &sndPcmSwParams{
		TstampMode:     SNDRV_PCM_TSTAMP_ENABLE,
		PeriodStep:     1,
		AvailMin:       1,
		XferAlign:      1,
		StartThreshold: p.boundary,
		StopThreshold:  p.boundary,
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_SW_PARAMS, uintptr(unsafe.Pointer(swParams))); err != nil {
		return fmt.Errorf("ioctl SW_PARAMS failed: %w", err)
	}

	if swParams.Boundary != 0 {
		p.boundary = swParams.Boundary
	}

	return nil
}

// boundary returns the wrap point of the hardware and application pointers the way the kernel
// computes it: the largest power-of-two multiple of the buffer size that fits a signed long.
func boundary(frames SndPcmUframesT) SndPcmUframesT {
	b := frames
	for b*2 <= maxSframes-frames {
		b *= 2
	}

	return b
}

func (p *pcm) close() error {
	if p.area != nil {
		_ = unix.Munmap(p.area)
		p.area = nil
	}

	if p.file == nil {
		return nil
	}

	_ = ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_DROP, 0)
	_ = ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_HW_FREE, 0)

	err := p.file.Close()
	p.file = nil

	return err
}

// syncPtr refreshes the cached status and application pointer. With hwsync the kernel first
// updates the hardware pointer, which it only can while the stream runs, so a stream in any
// other state falls back to a plain read.
func (p *pcm) syncPtr(hwsync bool) error {
	flags := uint32(SNDRV_PCM_SYNC_PTR_APPL | SNDRV_PCM_SYNC_PTR_AVAIL_MIN)

	if hwsync {
		p.sync.Flags = flags | SNDRV_PCM_SYNC_PTR_HWSYNC

		err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_SYNC_PTR, uintptr(unsafe.Pointer(&p.sync)))
		if err == nil || !(errors.Is(err, unix.EBADFD) || errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ESTRPIPE)) {
			return err
		}
	}

	p.sync.Flags = flags

	return ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_SYNC_PTR, uintptr(unsafe.Pointer(&p.sync)))
}

// state returns the current state of the stream.
func (p *pcm) state() (PcmState, error) {
	if err := p.syncPtr(false); err != nil {
		return SNDRV_PCM_STATE_DISCONNECTED, fmt.Errorf("ioctl SYNC_PTR failed: %w", err)
	}

	return p.sync.S.State, nil
}

// position returns the hardware pointer as a frame offset into the buffer.
func (p *pcm) position() (int, error) {
	if err := p.syncPtr(true); err != nil {
		return 0, fmt.Errorf("ioctl SYNC_PTR failed: %w", err)
	}

	return int(p.sync.S.HwPtr % p.frames), nil
}

// commit moves the application pointer to the frame offset end, ahead of the hardware pointer
// by at most one buffer.
func (p *pcm) commit(end int) error {
	if err := p.syncPtr(true); err != nil {
		return fmt.Errorf("ioctl SYNC_PTR failed: %w", err)
	}

	hw := p.sync.S.HwPtr
	appl := hw - hw%p.frames + SndPcmUframesT(end)
	if appl <= hw {
		appl += p.frames
	}
	appl %= p.boundary

	p.sync.C.ApplPtr = appl
	p.sync.Flags = SNDRV_PCM_SYNC_PTR_AVAIL_MIN

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_SYNC_PTR, uintptr(unsafe.Pointer(&p.sync))); err != nil {
		return fmt.Errorf("ioctl SYNC_PTR (appl) failed: %w", err)
	}

	return nil
}

func (p *pcm) prepare() error {
	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_PREPARE, 0); err != nil {
		return fmt.Errorf("ioctl PREPARE failed: %w", err)
	}

	return nil
}

func (p *pcm) start() error {
	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_START, 0); err != nil {
		return fmt.Errorf("ioctl START failed: %w", err)
	}

	return nil
}

func (p *pcm) drop() error {
	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_DROP, 0); err != nil {
		return fmt.Errorf("ioctl DROP failed: %w", err)
	}

	return nil
}

// pause pushes (enable) or releases the pause of a running stream.
func (p *pcm) pause(enable bool) error {
	var arg uintptr
	if enable {
		arg = 1
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_PAUSE, arg); err != nil {
		return fmt.Errorf("ioctl PAUSE failed: %w", err)
	}

	return nil
}

// resume wakes a stream suspended by a system suspend.
func (p *pcm) resume() error {
	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_RESUME, 0); err != nil {
		return fmt.Errorf("ioctl RESUME failed: %w", err)
	}

	return nil
}
