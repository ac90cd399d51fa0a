package soundout

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferLost is reported by a Buffer when its memory was reclaimed by the system.
	ErrBufferLost = errors.New("sound buffer lost")

	// ErrNotInitialized is returned by every method of a Session that was never created or is closed.
	ErrNotInitialized = errors.New("sound session not properly initialized")

	// ErrLockOutstanding is returned by BeginWrite while a previous Locker is still unreleased.
	ErrLockOutstanding = errors.New("previous lock has not been released")

	// ErrDeviceInit matches every *DeviceInitError.
	ErrDeviceInit = errors.New("sound device initialization failed")

	// ErrLock matches every *LockError.
	ErrLock = errors.New("sound buffer lock failed")

	// ErrRestore matches every *RestoreError.
	ErrRestore = errors.New("sound buffer restore failed")

	// ErrPlay is returned when playback could not be started.
	ErrPlay = errors.New("sound buffer play failed")
)

// DeviceInitError reports which step of session creation failed.
type DeviceInitError struct {
	Step string
	Err  error
}

func (e *DeviceInitError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Step, e.Err)
}

func (e *DeviceInitError) Unwrap() error { return e.Err }

func (e *DeviceInitError) Is(target error) bool { return target == ErrDeviceInit }

// LockError reports a failed lock of the circular buffer.
type LockError struct {
	Offset int
	Length int
	Err    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("failed to lock %d bytes at offset %d: %v", e.Length, e.Offset, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

func (e *LockError) Is(target error) bool { return target == ErrLock }

// RestoreError reports a failed attempt to restore a lost buffer.
type RestoreError struct {
	Err error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("failed to restore lost buffer: %v", e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

func (e *RestoreError) Is(target error) bool { return target == ErrRestore }
