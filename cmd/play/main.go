package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"github.com/smallnest/ringbuffer"

	"github.com/gen2brain/soundout"
	"github.com/gen2brain/soundout/alsa"
	"github.com/gen2brain/soundout/memdev"
)

type options struct {
	deviceName string
	latency    int
	queueMs    int
	interval   time.Duration
	null       bool
}

func main() {
	var opts options

	flag.StringVar(&opts.deviceName, "device", "hw:0,0", "The ALSA playback device")
	flag.IntVar(&opts.latency, "latency", 200, "The size of the circular buffer in milliseconds")
	flag.IntVar(&opts.queueMs, "queue", 500, "The size of the decode queue in milliseconds")
	flag.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "How often the buffer is refilled")
	flag.BoolVar(&opts.null, "null", false, "Play into an in-memory device instead of ALSA")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <wav|mp3|ogg-file>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	// run returns instead of exiting so the deferred device and file cleanup always runs.
	if err := run(flag.Arg(0), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, opts options) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	decoder, err := newDecoder(path, file)
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	if decoder.IsFloat() {
		return errors.New("floating-point WAV files are not supported")
	}

	channels := int(decoder.NumChans())
	if channels != 1 && channels != 2 {
		return fmt.Errorf("unsupported channel count: %d", channels)
	}

	var drv soundout.Driver
	if opts.null {
		drv = memdev.New(memdev.WithClock(opts.interval))
	} else {
		d, err := alsa.ParseName(opts.deviceName)
		if err != nil {
			return fmt.Errorf("parsing device name: %w", err)
		}
		drv = d
	}

	snd, err := soundout.New(drv, soundout.Config{
		SampleRate: int(decoder.SampleRate()),
		Stereo:     channels == 2,
		LatencyMs:  opts.latency,
	})
	if err != nil {
		return fmt.Errorf("opening sound device: %w", err)
	}
	defer snd.Close()

	format := snd.Format()
	duration, _ := decoder.Duration()

	fmt.Printf("Playing file: %s\n", path)
	fmt.Printf("Configuration: %s, %d bit source\n", format, decoder.BitDepth())
	fmt.Printf("Buffer: %d bytes, duration: %v\n", snd.BufferSize(), duration.Round(time.Millisecond))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &player{
		snd:      snd,
		decoder:  decoder,
		queue:    ringbuffer.New(format.AvgBytesPerSec() * opts.queueMs / 1000),
		frame:    format.BlockAlign(),
		producer: make(chan error, 1),
	}

	go p.produce(ctx)

	startTime := time.Now()

	playErr := p.play(ctx, opts.interval)
	if playErr != nil {
		playErr = fmt.Errorf("during playback: %w", playErr)
	}

	if err := snd.Stop(true); err != nil {
		playErr = errors.Join(playErr, fmt.Errorf("stopping playback: %w", err))
	}

	fmt.Printf("Playback finished in %v. (%d frames played, %d underruns)\n",
		time.Since(startTime).Round(time.Millisecond), p.written/int64(p.frame), p.underruns)

	return playErr
}

// player moves decoded audio from a producer goroutine, through the decode queue, into the
// session's circular buffer.
type player struct {
	snd     *soundout.Session
	decoder AudioDecoder
	queue   *ringbuffer.RingBuffer
	frame   int

	eof      atomic.Bool
	producer chan error

	written   int64
	underruns int
}

// produce decodes the file into the queue as little-endian 16-bit samples.
func (p *player) produce(ctx context.Context) {
	const chunkSamples = 4096

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: int(p.decoder.NumChans()), SampleRate: int(p.decoder.SampleRate())},
		Data:   make([]int, chunkSamples),
	}
	bitDepth := int(p.decoder.BitDepth())
	bytes := make([]byte, chunkSamples*2)

	for {
		n, err := p.decoder.PCMBuffer(buf)
		if n > 0 {
			chunk := bytes[:n*2]
			for i, v := range buf.Data[:n] {
				s := soundout.ToInt16(v, bitDepth)
				chunk[i*2] = byte(s)
				chunk[i*2+1] = byte(uint16(s) >> 8)
			}

			if !p.enqueue(ctx, chunk) {
				return
			}
		}

		if err != nil || n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				err = nil
			}

			p.eof.Store(true)
			p.producer <- err

			return
		}
	}
}

// enqueue writes chunk to the queue, waiting for free space. It returns false when ctx is done.
func (p *player) enqueue(ctx context.Context, chunk []byte) bool {
	for len(chunk) > 0 {
		if ctx.Err() != nil {
			return false
		}

		if p.queue.Free() < p.frame {
			time.Sleep(time.Millisecond)

			continue
		}

		n, _ := p.queue.Write(chunk)
		chunk = chunk[n:]
	}

	return true
}

// play refills the circular buffer every interval until the file has been played or ctx is done.
func (p *player) play(ctx context.Context, interval time.Duration) error {
	// Prime the queue so playback does not start on an underrun.
	for p.queue.Length() < min(p.snd.BufferSize(), p.queue.Capacity()) && !p.eof.Load() {
		if ctx.Err() != nil {
			return nil
		}

		time.Sleep(time.Millisecond)
	}

	if err := p.snd.Write(soundout.WriteAll, p.fill); err != nil {
		return err
	}

	if err := p.snd.Play(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var drainUntil time.Time

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nPlayback interrupted by user.")

			return nil
		case err := <-p.producer:
			if err != nil {
				return fmt.Errorf("decoding failed: %w", err)
			}
		case <-ticker.C:
		}

		if p.eof.Load() && p.queue.IsEmpty() {
			// Let the data already in the circular buffer play out behind silence.
			if drainUntil.IsZero() {
				drainUntil = time.Now().Add(time.Duration(p.snd.BufferSize()) * time.Second / time.Duration(p.snd.Format().AvgBytesPerSec()))
			}

			if time.Now().After(drainUntil) {
				return nil
			}

			if _, err := p.snd.FillSilence(); err != nil {
				return err
			}

			continue
		}

		if err := p.snd.Write(soundout.WriteAll, p.fill); err != nil {
			return err
		}
	}
}

// fill copies whole frames from the queue into both segments of lk.
func (p *player) fill(lk *soundout.Locker) error {
	n := p.dequeue(lk.Segment(soundout.First))
	if n == lk.Len(soundout.First) {
		n += p.dequeue(lk.Segment(soundout.Second))
	}

	if n == 0 && lk.Size() > 0 && !p.eof.Load() {
		p.underruns++
	}

	lk.SetWritten(n)
	p.written += int64(n)

	return nil
}

func (p *player) dequeue(seg []byte) int {
	n := min(len(seg), p.queue.Length())
	n -= n % p.frame
	if n == 0 {
		return 0
	}

	read, _ := p.queue.TryRead(seg[:n])

	return read
}
