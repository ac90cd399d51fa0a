package soundout

import "unsafe"

// SegmentIndex selects one of the two segments of a Locker.
type SegmentIndex int

const (
	// First is the segment starting at the write cursor.
	First SegmentIndex = 0
	// Second is the segment starting at offset 0, non-empty only when the lock wraps.
	Second SegmentIndex = 1
)

// Locker is a locked region of the circular buffer obtained from Session.BeginWrite.
//
// Release must be called exactly once, typically with defer right after BeginWrite succeeds.
// Session.Write does this on the caller's behalf.
type Locker struct {
	// session is cleared on release; a Locker never keeps a session open.
	session      *Session
	segs         [2][]byte
	written      int
	deviceLocked bool
	unlockFailed bool
}

// Segment returns the writable bytes of segment i, or nil for an empty or invalid segment.
func (lk *Locker) Segment(i SegmentIndex) []byte {
	if i != First && i != Second {
		return nil
	}

	return lk.segs[i]
}

// Len returns the length of segment i in bytes.
func (lk *Locker) Len(i SegmentIndex) int {
	return len(lk.Segment(i))
}

// Int16 returns segment i as native-endian 16-bit samples. A trailing odd byte is not included.
// Samples are stored little-endian, so the view only matches their values on little-endian hosts.
func (lk *Locker) Int16(i SegmentIndex) []int16 {
	seg := lk.Segment(i)
	if len(seg) < 2 {
		return nil
	}

	return unsafe.Slice((*int16)(unsafe.Pointer(&seg[0])), len(seg)/2)
}

// Size returns the total number of locked bytes.
func (lk *Locker) Size() int {
	return len(lk.segs[First]) + len(lk.segs[Second])
}

// SetWritten sets how many bytes, counted from the start of the first segment, were filled.
// It defaults to Size. Values are clamped to [0, Size].
func (lk *Locker) SetWritten(n int) {
	lk.written = max(0, min(n, lk.Size()))
}

// Written returns the number of bytes the write cursor advances by on release.
func (lk *Locker) Written() int {
	return lk.written
}

// Released reports whether Release was already called.
func (lk *Locker) Released() bool {
	return lk.session == nil
}

// Release unlocks the segments and advances the write cursor by Written bytes.
// Calling Release after it succeeded is a no-op. When it fails the Locker stays outstanding
// and Release may be called again.
func (lk *Locker) Release() error {
	if lk == nil || lk.session == nil {
		return nil
	}

	return lk.session.unlock(lk)
}

// sampleWriter writes little-endian 16-bit samples across both segments of a Locker,
// splitting a sample between the segments when the wrap point falls inside it.
type sampleWriter struct {
	lk  *Locker
	pos int
}

func (w *sampleWriter) put(v int16) bool {
	if w.pos+2 > w.lk.Size() {
		return false
	}

	w.putByte(w.pos, byte(v))
	w.putByte(w.pos+1, byte(uint16(v)>>8))
	w.pos += 2

	return true
}

func (w *sampleWriter) putByte(p int, b byte) {
	first := w.lk.segs[First]
	if p < len(first) {
		first[p] = b
	} else {
		w.lk.segs[Second][p-len(first)] = b
	}
}
