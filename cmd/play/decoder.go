package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// AudioDecoder abstracts the supported file formats so the playback loop can handle them uniformly.
type AudioDecoder interface {
	// PCMBuffer reads decoded samples into buf.Data and returns the number of samples (not frames) read.
	PCMBuffer(buf *audio.IntBuffer) (n int, err error)
	// Duration returns the total duration of the stream, or 0 when it is unknown.
	Duration() (time.Duration, error)
	NumChans() uint16
	SampleRate() uint32
	// BitDepth returns the bit depth of the integer samples returned by PCMBuffer.
	BitDepth() uint16
	// IsFloat reports whether the file stores floating-point samples PCMBuffer cannot convert.
	IsFloat() bool
}

// newDecoder picks a decoder from the file extension.
func newDecoder(path string, r io.ReadSeeker) (AudioDecoder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return newWavDecoder(r)
	case ".mp3":
		return newMp3Decoder(r)
	case ".ogg", ".oga":
		return newOggDecoder(r)
	default:
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
}

type wavDecoderWrapper struct {
	*wav.Decoder
}

func newWavDecoder(r io.ReadSeeker) (AudioDecoder, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	return &wavDecoderWrapper{Decoder: decoder}, nil
}

func (w *wavDecoderWrapper) SampleRate() uint32 { return w.Decoder.SampleRate }
func (w *wavDecoderWrapper) NumChans() uint16   { return w.Decoder.NumChans }
func (w *wavDecoderWrapper) BitDepth() uint16   { return uint16(w.Decoder.BitDepth) }
func (w *wavDecoderWrapper) IsFloat() bool      { return w.Decoder.WavAudioFormat == 3 } // 3 == IEEE float

// mp3DecoderWrapper adapts go-mp3, which always decodes to 16-bit stereo.
type mp3DecoderWrapper struct {
	decoder *mp3.Decoder
	byteBuf []byte
}

func newMp3Decoder(r io.Reader) (AudioDecoder, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	return &mp3DecoderWrapper{decoder: decoder}, nil
}

func (m *mp3DecoderWrapper) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	if n := len(buf.Data) * 2; cap(m.byteBuf) < n {
		m.byteBuf = make([]byte, n)
	}
	byteBuf := m.byteBuf[:len(buf.Data)*2]

	bytesRead, err := io.ReadFull(m.decoder, byteBuf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}

	samples := bytesRead / 2
	for i := range samples {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(byteBuf[i*2:])))
	}

	return samples, err
}

func (m *mp3DecoderWrapper) Duration() (time.Duration, error) {
	// 4 bytes per stereo 16-bit frame.
	frames := m.decoder.Length() / 4
	if frames <= 0 {
		return 0, nil
	}

	return time.Duration(frames) * time.Second / time.Duration(m.decoder.SampleRate()), nil
}

func (m *mp3DecoderWrapper) SampleRate() uint32 { return uint32(m.decoder.SampleRate()) }
func (m *mp3DecoderWrapper) NumChans() uint16   { return 2 }
func (m *mp3DecoderWrapper) BitDepth() uint16   { return 16 }
func (m *mp3DecoderWrapper) IsFloat() bool      { return false }

// oggDecoderWrapper adapts oggvorbis, whose float samples are converted to 16-bit integers.
type oggDecoderWrapper struct {
	reader   *oggvorbis.Reader
	floatBuf []float32
}

func newOggDecoder(r io.Reader) (AudioDecoder, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, err
	}

	return &oggDecoderWrapper{reader: reader}, nil
}

func (o *oggDecoderWrapper) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	// Read returns whole frames, so the request must be too.
	want := len(buf.Data) - len(buf.Data)%o.reader.Channels()
	if cap(o.floatBuf) < want {
		o.floatBuf = make([]float32, want)
	}

	n, err := o.reader.Read(o.floatBuf[:want])
	for i, v := range o.floatBuf[:n] {
		buf.Data[i] = int(math.Round(float64(max(-1, min(v, 1))) * math.MaxInt16))
	}

	return n, err
}

func (o *oggDecoderWrapper) Duration() (time.Duration, error) {
	// Length is in frames and 0 when the stream cannot seek.
	frames := o.reader.Length()

	return time.Duration(frames) * time.Second / time.Duration(o.reader.SampleRate()), nil
}

func (o *oggDecoderWrapper) SampleRate() uint32 { return uint32(o.reader.SampleRate()) }
func (o *oggDecoderWrapper) NumChans() uint16   { return uint16(o.reader.Channels()) }
func (o *oggDecoderWrapper) BitDepth() uint16   { return 16 }
func (o *oggDecoderWrapper) IsFloat() bool      { return false }
