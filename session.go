package soundout

import (
	"errors"
	"fmt"
)

// Session is an open sound device with a looping circular buffer and the write cursor into it.
type Session struct {
	device    Device
	primary   Buffer
	secondary Buffer

	format     Format
	bufferSize int
	writePos   int
	playing    bool

	// locked is the outstanding Locker, if any.
	locked *Locker
}

// New opens a device from drv and creates the buffers described by cfg.
// On failure every handle acquired so far is released and the returned error is a *DeviceInitError.
func New(drv Driver, cfg Config) (*Session, error) {
	if drv == nil {
		return nil, &DeviceInitError{Step: "create device", Err: errors.New("nil driver")}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &DeviceInitError{Step: "validate config", Err: err}
	}

	s := &Session{
		format: cfg.Format(),
	}

	var err error
	s.device, err = drv.CreateDevice()
	if err != nil {
		return nil, s.initFailed("create device", err)
	}

	if err = s.device.SetCooperativeLevel(CooperativePriority); err != nil {
		return nil, s.initFailed("set cooperative level", err)
	}

	s.primary, err = s.device.CreatePrimaryBuffer()
	if err != nil {
		return nil, s.initFailed("create primary buffer", err)
	}

	if err = s.primary.SetFormat(s.format); err != nil {
		return nil, s.initFailed("set format for primary buffer", err)
	}

	s.bufferSize = s.format.BufferBytes(cfg.LatencyMs)

	s.secondary, err = s.device.CreateBuffer(s.format, s.bufferSize)
	if err != nil {
		return nil, s.initFailed("create secondary buffer", err)
	}

	if err = s.secondary.SetPosition(0); err != nil {
		return nil, s.initFailed("reset play position", err)
	}

	if err = s.resync(); err != nil {
		return nil, s.initFailed("query play position", err)
	}

	return s, nil
}

// initFailed releases everything acquired during New and wraps err.
func (s *Session) initFailed(step string, err error) error {
	_ = s.release()

	return &DeviceInitError{Step: step, Err: err}
}

// release frees the buffers and the device in reverse order of acquisition.
func (s *Session) release() error {
	var errs []error

	if s.secondary != nil {
		if err := s.secondary.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release secondary buffer: %w", err))
		}
		s.secondary = nil
	}

	if s.primary != nil {
		if err := s.primary.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release primary buffer: %w", err))
		}
		s.primary = nil
	}

	if s.device != nil {
		if err := s.device.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release device: %w", err))
		}
		s.device = nil
	}

	return errors.Join(errs...)
}

// Close stops playback, abandons an outstanding lock without moving the write cursor and
// releases the device. Closing a closed session is a no-op.
func (s *Session) Close() error {
	if s == nil || s.secondary == nil {
		return nil
	}

	var errs []error

	if lk := s.locked; lk != nil {
		lk.session = nil
		s.locked = nil

		if lk.deviceLocked {
			if err := s.secondary.Unlock(lk.segs[First], lk.segs[Second]); err != nil {
				errs = append(errs, fmt.Errorf("unlock: %w", err))
			}
		}
	}

	if s.playing {
		if err := s.secondary.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playback: %w", err))
		}
		s.playing = false
	}

	if err := s.release(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *Session) verify() error {
	if s == nil || s.secondary == nil {
		return ErrNotInitialized
	}

	return nil
}

// IsReady reports whether the session holds an open device.
func (s *Session) IsReady() bool {
	return s.verify() == nil
}

// IsPlaying reports whether the hardware is playing the buffer. It returns false instead of
// ErrNotInitialized for a closed or zero session.
func (s *Session) IsPlaying() bool {
	return s.IsReady() && s.playing
}

// Format returns the output format of the session.
func (s *Session) Format() Format {
	return s.format
}

// BufferSize returns the size of the circular buffer in bytes.
func (s *Session) BufferSize() int {
	return s.bufferSize
}

// WritePos returns the byte offset at which the next lock starts.
func (s *Session) WritePos() int {
	return s.writePos
}

// AvailableToWrite returns how many bytes can be written without overtaking the play cursor.
// The play cursor is queried on every call since the hardware moves it independently.
func (s *Session) AvailableToWrite() (int, error) {
	if err := s.verify(); err != nil {
		return 0, err
	}

	play, _, err := s.secondary.Position()
	if err != nil {
		return 0, fmt.Errorf("failed to query play position: %w", err)
	}

	if play < s.writePos {
		return s.bufferSize - s.writePos + play, nil
	}

	return play - s.writePos, nil
}

// Play starts looped playback. Calling Play while playing is a no-op.
func (s *Session) Play() error {
	if err := s.verify(); err != nil {
		return err
	}

	if s.playing {
		return nil
	}

	err := s.retryLost(func() error {
		return s.secondary.Play(PlayLooping)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlay, err)
	}

	s.playing = true

	return nil
}

// Stop stops playback if it is running. With flush the whole buffer is zeroed, the play position
// is reset to the start and the write cursor is synchronized with the device again.
func (s *Session) Stop(flush bool) error {
	if err := s.verify(); err != nil {
		return err
	}

	if s.playing {
		if err := s.secondary.Stop(); err != nil {
			return fmt.Errorf("failed to stop playback: %w", err)
		}
		s.playing = false
	}

	if !flush {
		return nil
	}

	if err := s.settle(); err != nil {
		return err
	}

	seg1, seg2, err := s.lock(0, s.bufferSize, LockEntireBuffer)
	if err != nil {
		return err
	}

	clear(seg1)
	clear(seg2)

	if err := s.secondary.Unlock(seg1, seg2); err != nil {
		return fmt.Errorf("failed to unlock flushed buffer: %w", err)
	}

	if err := s.secondary.SetPosition(0); err != nil {
		return fmt.Errorf("failed to reset play position: %w", err)
	}

	if err := s.resync(); err != nil {
		return fmt.Errorf("failed to query play position: %w", err)
	}

	return nil
}

// BeginWrite locks up to n bytes at the write cursor. A negative n, or one larger than
// AvailableToWrite, is clamped to what is available. The returned Locker must be released
// before the next call. A previous Locker whose release failed on the device is released
// again first.
func (s *Session) BeginWrite(n int) (*Locker, error) {
	if err := s.verify(); err != nil {
		return nil, err
	}

	if err := s.settle(); err != nil {
		return nil, err
	}

	avail, err := s.AvailableToWrite()
	if err != nil {
		return nil, &LockError{Offset: s.writePos, Length: n, Err: err}
	}

	if n < 0 || n > avail {
		n = avail
	}

	lk := &Locker{session: s}

	if n > 0 {
		seg1, seg2, err := s.lock(s.writePos, n, 0)
		if err != nil {
			return nil, err
		}

		lk.segs = [2][]byte{normalize(seg1), normalize(seg2)}
		lk.deviceLocked = true
	}

	lk.written = lk.Size()
	s.locked = lk

	return lk, nil
}

// unlock hands the locker's segments back to the device and advances the write cursor by the
// number of bytes the caller wrote. When the device refuses the unlock, the Locker stays
// outstanding so the release can be retried.
func (s *Session) unlock(lk *Locker) error {
	if err := s.verify(); err != nil {
		lk.session = nil

		return err
	}

	if lk.deviceLocked {
		if err := s.secondary.Unlock(lk.segs[First], lk.segs[Second]); err != nil {
			lk.unlockFailed = true

			return fmt.Errorf("failed to unlock: %w", err)
		}
		lk.deviceLocked = false
	}

	lk.session = nil
	lk.unlockFailed = false
	s.locked = nil

	if lk.written > 0 {
		s.writePos = (s.writePos + lk.written) % s.bufferSize
	}

	return nil
}

// settle makes sure no Locker is outstanding. A Locker whose release failed on the device is
// released again; any other outstanding Locker is a misuse.
func (s *Session) settle() error {
	lk := s.locked
	if lk == nil {
		return nil
	}

	if !lk.unlockFailed {
		return ErrLockOutstanding
	}

	return s.unlock(lk)
}

// lock locks the secondary buffer, restoring it once if it was lost.
func (s *Session) lock(offset, length int, flags LockFlags) (seg1, seg2 []byte, err error) {
	err = s.retryLost(func() error {
		var lockErr error
		seg1, seg2, lockErr = s.secondary.Lock(offset, length, flags)

		return lockErr
	})
	if err != nil {
		var restoreErr *RestoreError
		if errors.As(err, &restoreErr) {
			return nil, nil, err
		}

		return nil, nil, &LockError{Offset: offset, Length: length, Err: err}
	}

	return seg1, seg2, nil
}

// retryLost runs op and, if the buffer was lost, restores it and runs op exactly once more.
func (s *Session) retryLost(op func() error) error {
	err := op()
	if !errors.Is(err, ErrBufferLost) {
		return err
	}

	if restoreErr := s.secondary.Restore(); restoreErr != nil {
		return &RestoreError{Err: restoreErr}
	}

	return op()
}

// resync places the write cursor just past the device write cursor.
func (s *Session) resync() error {
	_, write, err := s.secondary.Position()
	if err != nil {
		return err
	}

	s.writePos = (write + SafetyOffset) % s.bufferSize

	return nil
}

func normalize(seg []byte) []byte {
	if len(seg) == 0 {
		return nil
	}

	return seg
}
