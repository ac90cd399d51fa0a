package soundout

// CooperativeLevel controls how the device is shared with other applications.
type CooperativeLevel int

const (
	// CooperativeNormal shares the device and may not change the output format.
	CooperativeNormal CooperativeLevel = iota
	// CooperativePriority allows the application to set the output format.
	CooperativePriority
	// CooperativeExclusive requests sole use of the device.
	CooperativeExclusive
)

// String returns the name of the level.
func (l CooperativeLevel) String() string {
	switch l {
	case CooperativeNormal:
		return "normal"
	case CooperativePriority:
		return "priority"
	case CooperativeExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// LockFlags modify Buffer.Lock.
type LockFlags uint32

const (
	// LockEntireBuffer ignores offset and length and locks the whole buffer.
	LockEntireBuffer LockFlags = 1 << 0
)

// PlayFlags modify Buffer.Play.
type PlayFlags uint32

const (
	// PlayLooping keeps playing from the start of the buffer after reaching its end.
	PlayLooping PlayFlags = 1 << 0
)

// Driver creates sound devices. It is implemented by platform backends (see the alsa and memdev packages).
type Driver interface {
	CreateDevice() (Device, error)
}

// Device is an open sound device.
type Device interface {
	SetCooperativeLevel(level CooperativeLevel) error
	// CreatePrimaryBuffer returns the device's non-playable primary buffer.
	CreatePrimaryBuffer() (Buffer, error)
	// CreateBuffer creates a playable circular buffer of sizeBytes bytes.
	CreateBuffer(format Format, sizeBytes int) (Buffer, error)
	// Release closes the device. It is idempotent.
	Release() error
}

// Buffer is a device sound buffer. All offsets and lengths are in bytes.
//
// Lock and Play return an error matching ErrBufferLost when the buffer contents were invalidated
// and the buffer has to be restored before it can be used again.
type Buffer interface {
	SetFormat(format Format) error
	// Position returns the play cursor and the device write cursor. Data between the two is
	// already committed to the hardware.
	Position() (play, write int, err error)
	SetPosition(offset int) error
	// Lock returns the writable region [offset, offset+length) of the circular buffer as up to two
	// segments. The second segment is non-empty only when the region wraps past the end.
	Lock(offset, length int, flags LockFlags) (seg1, seg2 []byte, err error)
	// Unlock hands back the segments returned by Lock.
	Unlock(seg1, seg2 []byte) error
	Restore() error
	Play(flags PlayFlags) error
	Stop() error
	// Release frees the buffer. It is idempotent.
	Release() error
}
