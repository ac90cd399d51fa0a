// Package soundout streams 16-bit PCM into a hardware-managed circular buffer.
//
// A Session owns a sound device, a primary buffer that only anchors the output format, and a
// looping secondary buffer the hardware plays from. The application writes into the secondary
// buffer through a begin/release protocol: BeginWrite reserves the gap between the session's
// write cursor and the hardware play cursor, and Locker.Release hands the region back and
// advances the write cursor by the bytes actually written.
//
// A Session is not safe for concurrent use. One producer goroutine must call BeginWrite and
// Release in strict, non-overlapping pairs.
package soundout

import "fmt"

// BitsPerSample is the only sample width supported.
const BitsPerSample = 16

// SafetyOffset is added to the device write cursor whenever the session (re)synchronizes its own
// write position, so that the first lock does not race the device read cursor.
// The value is empirical and has not been validated beyond the devices it was tuned on.
const SafetyOffset = 4

// WriteAll requests as many bytes as are available to write.
const WriteAll = -1

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// BlockAlign returns the size of a single frame in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * BitsPerSample / 8
}

// AvgBytesPerSec returns the byte rate of the stream.
func (f Format) AvgBytesPerSec() int {
	return f.BlockAlign() * f.SampleRate
}

// BufferBytes returns the size of a buffer holding latencyMs milliseconds of audio,
// rounded down to whole frames.
func (f Format) BufferBytes(latencyMs int) int {
	return latencyMs * f.SampleRate / 1000 * f.BlockAlign()
}

// BytesToFrames converts a number of bytes to whole frames.
func (f Format) BytesToFrames(n int) int {
	if f.BlockAlign() == 0 {
		return 0
	}

	return n / f.BlockAlign()
}

// String returns a human-readable representation of the format.
func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, S16_LE", f.SampleRate, f.Channels)
}

// Config holds the parameters of a Session.
type Config struct {
	SampleRate int
	Stereo     bool
	// LatencyMs is the duration of the circular buffer in milliseconds.
	LatencyMs int
}

// Format returns the output format described by the config.
func (c Config) Format() Format {
	channels := 1
	if c.Stereo {
		channels = 2
	}

	return Format{SampleRate: c.SampleRate, Channels: channels}
}

// Validate checks that the config describes a non-empty buffer.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}

	if c.LatencyMs <= 0 {
		return fmt.Errorf("invalid latency %d ms", c.LatencyMs)
	}

	if c.Format().BufferBytes(c.LatencyMs) <= 0 {
		return fmt.Errorf("latency %d ms at %d Hz yields an empty buffer", c.LatencyMs, c.SampleRate)
	}

	return nil
}
