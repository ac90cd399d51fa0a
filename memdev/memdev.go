// Package memdev implements soundout.Driver on top of plain memory.
//
// The circular buffer is a byte slice and the play cursor only moves when told to: by Advance,
// or by a ticker started with WithClock that consumes the buffer in real time while playing.
// Every collaborator step can be made to fail, which makes the package useful for tests as well
// as for running without sound hardware.
package memdev

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/soundout"
)

// Step names a device operation that can be made to fail with Driver.Fail.
type Step string

const (
	StepCreateDevice Step = "create device"
	StepCooperative  Step = "set cooperative level"
	StepPrimary      Step = "create primary buffer"
	StepSetFormat    Step = "set format"
	StepSecondary    Step = "create secondary buffer"
	StepPosition     Step = "position"
	StepLock         Step = "lock"
	StepUnlock       Step = "unlock"
	StepPlay         Step = "play"
	StepStop         Step = "stop"
	StepRestore      Step = "restore"
)

// Names recorded by Released.
const (
	NameDevice    = "device"
	NamePrimary   = "primary"
	NameSecondary = "secondary"
)

// Stats counts calls made on the secondary buffer.
type Stats struct {
	Locks    int
	Unlocks  int
	Restores int
	Plays    int
	Stops    int
	Lost     int
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock advances the play cursor every interval by the amount of audio that interval holds,
// for as long as the buffer is playing.
func WithClock(interval time.Duration) Option {
	return func(d *Driver) {
		d.clock = interval
	}
}

// WithWriteLead places the device write cursor lead bytes ahead of the play cursor.
func WithWriteLead(lead int) Option {
	return func(d *Driver) {
		d.lead = lead
	}
}

// Driver is an in-memory sound driver. It creates a single device with one secondary buffer at a time.
type Driver struct {
	mu       sync.Mutex
	clock    time.Duration
	lead     int
	failures map[Step]error
	lost     int
	level    soundout.CooperativeLevel
	released []string
	stats    Stats

	device    *Device
	primary   *Buffer
	secondary *Buffer
}

// New creates a Driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		failures: make(map[Step]error),
		level:    -1,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Fail makes every following call of step return err. A nil err clears the failure.
func (d *Driver) Fail(step Step, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		delete(d.failures, step)

		return
	}

	d.failures[step] = err
}

// LoseBuffer makes the next n Lock or Play calls report soundout.ErrBufferLost.
func (d *Driver) LoseBuffer(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lost = n
}

// Advance moves the play cursor of the secondary buffer n bytes forward.
func (d *Driver) Advance(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b := d.secondary; b != nil && len(b.data) > 0 {
		b.play = (b.play + n) % len(b.data)
	}
}

// SetPlayCursor places the play cursor of the secondary buffer at offset.
func (d *Driver) SetPlayCursor(offset int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b := d.secondary; b != nil && len(b.data) > 0 {
		b.play = offset % len(b.data)
	}
}

// PlayCursor returns the play cursor of the secondary buffer.
func (d *Driver) PlayCursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.secondary == nil {
		return 0
	}

	return d.secondary.play
}

// Bytes returns a copy of the secondary buffer contents.
func (d *Driver) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.secondary == nil {
		return nil
	}

	return append([]byte(nil), d.secondary.data...)
}

// Playing reports whether the secondary buffer is playing.
func (d *Driver) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.secondary != nil && d.secondary.playing
}

// Locked reports whether the secondary buffer has an outstanding lock.
func (d *Driver) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.secondary != nil && d.secondary.locked
}

// Level returns the cooperative level last set on the device, or -1.
func (d *Driver) Level() soundout.CooperativeLevel {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.level
}

// Released returns the names of released handles in release order.
func (d *Driver) Released() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.released...)
}

// Created reports whether a handle with the given name was ever created.
func (d *Driver) Created(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch name {
	case NameDevice:
		return d.device != nil
	case NamePrimary:
		return d.primary != nil
	case NameSecondary:
		return d.secondary != nil
	default:
		return false
	}
}

// Stats returns the call counters of the secondary buffer.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stats
}

// CreateDevice implements soundout.Driver.
func (d *Driver) CreateDevice() (soundout.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failures[StepCreateDevice]; err != nil {
		return nil, err
	}

	d.device = &Device{drv: d}

	return d.device, nil
}

// failLocked returns the injected failure for step. d.mu must be held.
func (d *Driver) failLocked(step Step) error {
	if err := d.failures[step]; err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}

	return nil
}

// loseLocked consumes one pending buffer loss. d.mu must be held.
func (d *Driver) loseLocked() bool {
	if d.lost <= 0 {
		return false
	}

	d.lost--
	d.stats.Lost++

	return true
}

// Device is an in-memory sound device.
type Device struct {
	drv      *Driver
	released bool
}

// SetCooperativeLevel implements soundout.Device.
func (dev *Device) SetCooperativeLevel(level soundout.CooperativeLevel) error {
	d := dev.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failLocked(StepCooperative); err != nil {
		return err
	}

	if level < soundout.CooperativeNormal || level > soundout.CooperativeExclusive {
		return fmt.Errorf("invalid cooperative level %d", level)
	}

	d.level = level

	return nil
}

// CreatePrimaryBuffer implements soundout.Device.
func (dev *Device) CreatePrimaryBuffer() (soundout.Buffer, error) {
	d := dev.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failLocked(StepPrimary); err != nil {
		return nil, err
	}

	d.primary = &Buffer{drv: d, name: NamePrimary, primary: true}

	return d.primary, nil
}

// CreateBuffer implements soundout.Device.
func (dev *Device) CreateBuffer(format soundout.Format, sizeBytes int) (soundout.Buffer, error) {
	d := dev.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failLocked(StepSecondary); err != nil {
		return nil, err
	}

	if sizeBytes <= 0 || format.BlockAlign() == 0 || sizeBytes%format.BlockAlign() != 0 {
		return nil, fmt.Errorf("invalid buffer size %d for %s", sizeBytes, format)
	}

	d.secondary = &Buffer{
		drv:    d,
		name:   NameSecondary,
		format: format,
		data:   make([]byte, sizeBytes),
	}

	return d.secondary, nil
}

// Release implements soundout.Device.
func (dev *Device) Release() error {
	d := dev.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if !dev.released {
		dev.released = true
		d.released = append(d.released, NameDevice)
	}

	return nil
}

// Buffer is an in-memory sound buffer.
type Buffer struct {
	drv      *Driver
	name     string
	primary  bool
	format   soundout.Format
	data     []byte
	play     int
	playing  bool
	locked   bool
	released bool
	stop     chan struct{}
	done     chan struct{}
}

var errPrimary = errors.New("operation not supported on the primary buffer")

// SetFormat implements soundout.Buffer.
func (b *Buffer) SetFormat(format soundout.Format) error {
	d := b.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failLocked(StepSetFormat); err != nil {
		return err
	}

	if !b.primary {
		return fmt.Errorf("format of a secondary buffer is fixed at creation")
	}

	if format.SampleRate <= 0 || format.Channels < 1 || format.Channels > 2 {
		return fmt.Errorf("unsupported format %s", format)
	}

	b.format = format

	return nil
}

// Position implements soundout.Buffer.
func (b *Buffer) Position() (play, write int, err error) {
	d := b.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.primary {
		return 0, 0, errPrimary
	}

	if err := d.failLocked(StepPosition); err != nil {
		return 0, 0, err
	}

	return b.play, (b.play + d.lead) % len(b.data), nil
}

// SetPosition implements soundout.Buffer.
func (b *Buffer) SetPosition(offset int) error {
	d := b.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.primary {
		return errPrimary
	}

	if offset < 0 || offset >= len(b.data) {
		return fmt.Errorf("position %d out of range [0, %d)", offset, len(b.data))
	}

	b.play = offset

	return nil
}

// Lock implements soundout.Buffer.
func (b *Buffer) Lock(offset, length int, flags soundout.LockFlags) (seg1, seg2 []byte, err error) {
	d := b.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.primary {
		return nil, nil, errPrimary
	}

	d.stats.Locks++

	if err := d.failLocked(StepLock); err != nil {
		return nil, nil, err
	}

	if d.loseLocked() {
		return nil, nil, soundout.ErrBufferLost
	}

	if b.locked {
		return nil, nil, fmt.Errorf("buffer is already locked")
	}

	size := len(b.data)
	if flags&soundout.LockEntireBuffer != 0 {
		offset, length = 0, size
	}

	if offset < 0 || offset >= size || length <= 0 || length > size {
		return nil, nil, fmt.Errorf("invalid lock of %d bytes at offset %d in a %d byte buffer", length, offset, size)
	}

	end := offset + length
	if end <= size {
		seg1 = b.data[offset:end:end]
	} else {
		seg1 = b.data[offset:size:size]
		seg2 = b.data[: end-size : end-size]
	}

	b.locked = true

	return seg1, seg2, nil
}

// Unlock implements soundout.Buffer.
func (b *Buffer) Unlock(seg1, seg2 []byte) error {
	d := b.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Unlocks++

	if err := d.failLocked(StepUnlock); err != nil {
		return err
	}

	if !b.locked {
		return fmt.Errorf("buffer is not locked")
	}

	b.locked = false

	return nil
}

// Restore implements soundout.Buffer.
func (b *Buffer) Restore() error {
	d := b.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Restores++

	return d.failLocked(StepRestore)
}

// Play implements soundout.Buffer.
func (b *Buffer) Play(flags soundout.PlayFlags) error {
	d := b.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.primary {
		return errPrimary
	}

	d.stats.Plays++

	if err := d.failLocked(StepPlay); err != nil {
		return err
	}

	if d.loseLocked() {
		return soundout.ErrBufferLost
	}

	if flags&soundout.PlayLooping == 0 {
		return fmt.Errorf("only looping playback is supported")
	}

	if b.playing {
		return nil
	}

	b.playing = true

	if d.clock > 0 {
		b.stop = make(chan struct{})
		b.done = make(chan struct{})
		go b.run(d.clock, b.stop, b.done)
	}

	return nil
}

// Stop implements soundout.Buffer.
func (b *Buffer) Stop() error {
	d := b.drv
	d.mu.Lock()

	d.stats.Stops++

	if err := d.failLocked(StepStop); err != nil {
		d.mu.Unlock()

		return err
	}

	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.playing = false
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	return nil
}

// Release implements soundout.Buffer.
func (b *Buffer) Release() error {
	d := b.drv
	d.mu.Lock()

	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.playing = false

	if !b.released {
		b.released = true
		d.released = append(d.released, b.name)
	}
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	return nil
}

// run consumes the buffer in real time until stop is closed.
func (b *Buffer) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	d := b.drv
	blockAlign := b.format.BlockAlign()

	step := int(int64(b.format.AvgBytesPerSec()) * int64(interval) / int64(time.Second))
	step -= step % blockAlign
	if step == 0 {
		step = blockAlign
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			b.play = (b.play + step) % len(b.data)
			d.mu.Unlock()
		}
	}
}
