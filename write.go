package soundout

import (
	"fmt"

	"github.com/go-audio/audio"
)

// Write locks up to n bytes (see BeginWrite), calls fill and releases the lock when fill returns,
// fails or panics. The write cursor advances by whatever fill left in Locker.Written.
func (s *Session) Write(n int, fill func(lk *Locker) error) (err error) {
	lk, err := s.BeginWrite(n)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := lk.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	return fill(lk)
}

// FillSilence zero-fills all space available to write and returns the number of bytes written.
func (s *Session) FillSilence() (int, error) {
	var n int

	err := s.Write(WriteAll, func(lk *Locker) error {
		clear(lk.Segment(First))
		clear(lk.Segment(Second))
		n = lk.Size()

		return nil
	})

	return n, err
}

// WritePCM copies as many whole frames of buf as currently fit into the circular buffer and
// returns the number of frames consumed. Samples are scaled from buf.SourceBitDepth
// (16 when unset) and clamped to the int16 range. The caller drops the consumed frames
// from buf.Data before the next call.
func (s *Session) WritePCM(buf *audio.IntBuffer) (int, error) {
	if err := s.verify(); err != nil {
		return 0, err
	}

	if buf == nil || buf.Format == nil {
		return 0, fmt.Errorf("PCM buffer has no format")
	}

	if buf.Format.NumChannels != s.format.Channels {
		return 0, fmt.Errorf("PCM buffer has %d channels, session expects %d", buf.Format.NumChannels, s.format.Channels)
	}

	blockAlign := s.format.BlockAlign()
	frames := len(buf.Data) / s.format.Channels
	if frames == 0 {
		return 0, nil
	}

	var consumed int

	err := s.Write(frames*blockAlign, func(lk *Locker) error {
		consumed = lk.Size() / blockAlign

		w := sampleWriter{lk: lk}
		for _, v := range buf.Data[:consumed*s.format.Channels] {
			w.put(ToInt16(v, buf.SourceBitDepth))
		}

		lk.SetWritten(consumed * blockAlign)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return consumed, nil
}

// ToInt16 scales a sample of bitDepth bits to 16 bits and clamps it to the int16 range.
// A bitDepth of 0 is treated as 16.
func ToInt16(v, bitDepth int) int16 {
	shift := 0
	if bitDepth > 0 {
		shift = bitDepth - BitsPerSample
	}

	switch {
	case shift > 0:
		v >>= shift
	case shift < 0:
		v <<= -shift
	}

	return int16(max(-32768, min(v, 32767)))
}
