package alsa

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gen2brain/soundout"
)

// Driver opens the playback stream of one hardware PCM device.
type Driver struct {
	Card   uint
	Device uint
}

// String returns the device name in the "hw:C,D" format.
func (d *Driver) String() string {
	return fmt.Sprintf("hw:%d,%d", d.Card, d.Device)
}

// CreateDevice implements soundout.Driver. It fails when the card has no such playback device.
func (d *Driver) CreateDevice() (soundout.Device, error) {
	cards, err := EnumerateCards()
	if err != nil {
		return nil, err
	}

	for _, card := range cards {
		if card.ID != int(d.Card) {
			continue
		}

		if _, ok := card.PlaybackDevice(int(d.Device)); ok {
			return &Device{card: d.Card, device: d.Device, level: soundout.CooperativeNormal}, nil
		}
	}

	return nil, fmt.Errorf("no playback device %s: %w", d, unix.ENODEV)
}

// Device is a hardware PCM device.
type Device struct {
	card     uint
	device   uint
	level    soundout.CooperativeLevel
	format   soundout.Format
	released bool
}

// SetCooperativeLevel implements soundout.Device. Priority and exclusive levels require a free
// substream, and exclusive additionally requires that no other application uses the device.
func (dev *Device) SetCooperativeLevel(level soundout.CooperativeLevel) error {
	if dev.released {
		return errReleased
	}

	switch level {
	case soundout.CooperativeNormal:
	case soundout.CooperativePriority, soundout.CooperativeExclusive:
		file, err := openPlayback(dev.card, dev.device)
		if err != nil {
			return err
		}

		var info sndPcmInfo
		err = ioctl(file.Fd(), SNDRV_PCM_IOCTL_INFO, uintptr(unsafe.Pointer(&info)))
		_ = file.Close()

		if err != nil {
			return fmt.Errorf("ioctl INFO failed: %w", err)
		}

		// The handle opened above holds one substream itself.
		if level == soundout.CooperativeExclusive && info.SubdevicesAvail+1 < info.SubdevicesCount {
			return fmt.Errorf("device is in use by another application: %w", unix.EBUSY)
		}
	default:
		return fmt.Errorf("invalid cooperative level %d: %w", level, unix.EINVAL)
	}

	dev.level = level

	return nil
}

// Level returns the cooperative level of the device.
func (dev *Device) Level() soundout.CooperativeLevel {
	return dev.level
}

// CreatePrimaryBuffer implements soundout.Device.
func (dev *Device) CreatePrimaryBuffer() (soundout.Buffer, error) {
	if dev.released {
		return nil, errReleased
	}

	return &primaryBuffer{dev: dev}, nil
}

// CreateBuffer implements soundout.Device. The buffer is the device's playback stream,
// so a device has at most one.
func (dev *Device) CreateBuffer(format soundout.Format, sizeBytes int) (soundout.Buffer, error) {
	if dev.released {
		return nil, errReleased
	}

	blockAlign := format.BlockAlign()
	if sizeBytes <= 0 || blockAlign == 0 || sizeBytes%blockAlign != 0 {
		return nil, fmt.Errorf("invalid buffer size %d for %s: %w", sizeBytes, format, unix.EINVAL)
	}

	p, err := openStream(dev.card, dev.device, uint32(format.SampleRate), uint32(format.Channels), sizeBytes/blockAlign)
	if err != nil {
		return nil, err
	}

	return &Buffer{pcm: p, format: format}, nil
}

// Release implements soundout.Device.
func (dev *Device) Release() error {
	dev.released = true

	return nil
}

var (
	errReleased = errors.New("device already released")
	errPrimary  = errors.New("operation not supported on the primary buffer")
)

// primaryBuffer anchors the output format of the device. It has no memory of its own.
type primaryBuffer struct {
	dev *Device
}

// SetFormat checks that the hardware can play format. It requires at least the priority level.
func (b *primaryBuffer) SetFormat(format soundout.Format) error {
	if b.dev.level < soundout.CooperativePriority {
		return fmt.Errorf("setting the format requires the priority level: %w", unix.EPERM)
	}

	if format.SampleRate <= 0 || format.Channels < 1 || format.Channels > 2 {
		return fmt.Errorf("unsupported format %s: %w", format, unix.EINVAL)
	}

	file, err := openPlayback(b.dev.card, b.dev.device)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := refine(file, uint32(format.SampleRate), uint32(format.Channels)); err != nil {
		return err
	}

	b.dev.format = format

	return nil
}

func (b *primaryBuffer) Position() (int, int, error)          { return 0, 0, errPrimary }
func (b *primaryBuffer) SetPosition(int) error                { return errPrimary }
func (b *primaryBuffer) Unlock([]byte, []byte) error          { return errPrimary }
func (b *primaryBuffer) Restore() error                       { return nil }
func (b *primaryBuffer) Play(soundout.PlayFlags) error        { return errPrimary }
func (b *primaryBuffer) Stop() error                          { return nil }
func (b *primaryBuffer) Release() error                       { return nil }
func (b *primaryBuffer) Lock(int, int, soundout.LockFlags) ([]byte, []byte, error) {
	return nil, nil, errPrimary
}

// Buffer is the looping playback stream of a device. All offsets are in bytes.
type Buffer struct {
	pcm    *pcm
	format soundout.Format

	locked     bool
	lockOffset int
	lockLength int
}

// IsReady reports whether the buffer holds an open stream.
func (b *Buffer) IsReady() bool {
	return b != nil && b.pcm != nil
}

// State returns the state of the underlying stream.
func (b *Buffer) State() (PcmState, error) {
	if !b.IsReady() {
		return SNDRV_PCM_STATE_DISCONNECTED, errReleased
	}

	return b.pcm.state()
}

// Size returns the size of the buffer in bytes.
func (b *Buffer) Size() int {
	if !b.IsReady() {
		return 0
	}

	return len(b.pcm.area)
}

// SetFormat implements soundout.Buffer. The format of the stream is fixed at creation.
func (b *Buffer) SetFormat(soundout.Format) error {
	return fmt.Errorf("format of a secondary buffer is fixed at creation: %w", unix.EINVAL)
}

// Position implements soundout.Buffer. The hardware does not expose a separate write cursor,
// so both cursors are the hardware pointer.
func (b *Buffer) Position() (play, write int, err error) {
	if !b.IsReady() {
		return 0, 0, errReleased
	}

	frame, err := b.pcm.position()
	if err != nil {
		return 0, 0, err
	}

	play = frame * b.pcm.frameSize

	return play, play, nil
}

// SetPosition implements soundout.Buffer. Only offset 0 is supported: the stream is stopped and
// prepared again, which rewinds the hardware pointer.
func (b *Buffer) SetPosition(offset int) error {
	if !b.IsReady() {
		return errReleased
	}

	if offset != 0 {
		return fmt.Errorf("cannot move the play position to %d: %w", offset, unix.EINVAL)
	}

	if err := b.pcm.drop(); err != nil {
		return err
	}

	return b.pcm.prepare()
}

// Lock implements soundout.Buffer. The segments point into the memory the hardware plays from.
func (b *Buffer) Lock(offset, length int, flags soundout.LockFlags) (seg1, seg2 []byte, err error) {
	if !b.IsReady() {
		return nil, nil, errReleased
	}

	state, err := b.pcm.state()
	if err != nil {
		return nil, nil, err
	}

	switch state {
	case SNDRV_PCM_STATE_SUSPENDED:
		return nil, nil, soundout.ErrBufferLost
	case SNDRV_PCM_STATE_XRUN:
		return nil, nil, fmt.Errorf("stream stopped on an underrun: %w", unix.EPIPE)
	case SNDRV_PCM_STATE_DISCONNECTED:
		return nil, nil, fmt.Errorf("device disconnected: %w", unix.ENODEV)
	}

	if b.locked {
		return nil, nil, fmt.Errorf("buffer is already locked: %w", unix.EBUSY)
	}

	area := b.pcm.area
	size := len(area)

	if flags&soundout.LockEntireBuffer != 0 {
		offset, length = 0, size
	}

	if offset < 0 || offset >= size || length <= 0 || length > size {
		return nil, nil, fmt.Errorf("invalid lock of %d bytes at offset %d in a %d byte buffer: %w", length, offset, size, unix.EINVAL)
	}

	end := offset + length
	if end <= size {
		seg1 = area[offset:end:end]
	} else {
		seg1 = area[offset:size:size]
		seg2 = area[: end-size : end-size]
	}

	b.locked = true
	b.lockOffset = offset
	b.lockLength = length

	return seg1, seg2, nil
}

// Unlock implements soundout.Buffer. The application pointer is moved to the end of the locked
// region so the driver sees the region as filled.
func (b *Buffer) Unlock(seg1, seg2 []byte) error {
	if !b.IsReady() {
		return errReleased
	}

	if !b.locked {
		return fmt.Errorf("buffer is not locked: %w", unix.EINVAL)
	}

	area := b.pcm.area
	if len(seg1) == 0 || &seg1[0] != &area[b.lockOffset] || len(seg1)+len(seg2) != b.lockLength {
		return fmt.Errorf("segments do not match the locked region: %w", unix.EINVAL)
	}

	b.locked = false

	end := (b.lockOffset + b.lockLength) % len(area)

	return b.pcm.commit(end / b.pcm.frameSize)
}

// Restore implements soundout.Buffer. A suspended stream is resumed, or prepared again when the
// hardware cannot resume; a stream that stopped on an error is prepared.
func (b *Buffer) Restore() error {
	if !b.IsReady() {
		return errReleased
	}

	state, err := b.pcm.state()
	if err != nil {
		return err
	}

	switch state {
	case SNDRV_PCM_STATE_SUSPENDED:
		if err := b.pcm.resume(); err == nil {
			return nil
		}

		return b.pcm.prepare()
	case SNDRV_PCM_STATE_XRUN, SNDRV_PCM_STATE_SETUP:
		return b.pcm.prepare()
	case SNDRV_PCM_STATE_DISCONNECTED:
		return fmt.Errorf("device disconnected: %w", unix.ENODEV)
	default:
		return nil
	}
}

// Play implements soundout.Buffer. Only looping playback is supported.
func (b *Buffer) Play(flags soundout.PlayFlags) error {
	if !b.IsReady() {
		return errReleased
	}

	if flags&soundout.PlayLooping == 0 {
		return fmt.Errorf("only looping playback is supported: %w", unix.EINVAL)
	}

	state, err := b.pcm.state()
	if err != nil {
		return err
	}

	switch state {
	case SNDRV_PCM_STATE_RUNNING:
		return nil
	case SNDRV_PCM_STATE_PAUSED:
		return b.pcm.pause(false)
	case SNDRV_PCM_STATE_SUSPENDED:
		return soundout.ErrBufferLost
	case SNDRV_PCM_STATE_SETUP, SNDRV_PCM_STATE_XRUN:
		if err := b.pcm.prepare(); err != nil {
			return err
		}
	case SNDRV_PCM_STATE_PREPARED:
	default:
		return fmt.Errorf("cannot start a stream in state %s: %w", state, unix.EBADFD)
	}

	return b.pcm.start()
}

// Stop implements soundout.Buffer. A running stream is paused so the play position is kept;
// hardware without pause support is stopped instead.
func (b *Buffer) Stop() error {
	if !b.IsReady() {
		return errReleased
	}

	state, err := b.pcm.state()
	if err != nil {
		return err
	}

	if state != SNDRV_PCM_STATE_RUNNING {
		return nil
	}

	if err := b.pcm.pause(true); err == nil {
		return nil
	}

	return b.pcm.drop()
}

// Release implements soundout.Buffer.
func (b *Buffer) Release() error {
	if !b.IsReady() {
		return nil
	}

	err := b.pcm.close()
	b.pcm = nil
	b.locked = false

	return err
}
