package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/gen2brain/soundout"
	"github.com/gen2brain/soundout/alsa"
	"github.com/gen2brain/soundout/memdev"
)

func main() {
	// run returns instead of exiting so the deferred device and file cleanup always runs.
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		deviceName string
		rate       int
		mono       bool
		latency    int
		hz         float64
		amp        float64
		duration   time.Duration
		interval   time.Duration
		null       bool
		record     string
	)

	fs := flag.NewFlagSet("tone", flag.ContinueOnError)

	fs.StringVar(&deviceName, "device", "hw:0,0", "The ALSA playback device")
	fs.IntVar(&rate, "rate", 44100, "The sample rate in Hz")
	fs.BoolVar(&mono, "mono", false, "Play a single channel instead of stereo")
	fs.IntVar(&latency, "latency", 200, "The size of the circular buffer in milliseconds")
	fs.Float64Var(&hz, "hz", 220, "The tone frequency in Hz")
	fs.Float64Var(&amp, "amp", 8000, "The peak amplitude (0-32767)")
	fs.DurationVar(&duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	fs.DurationVar(&interval, "interval", 10*time.Millisecond, "How often the buffer is refilled")
	fs.BoolVar(&null, "null", false, "Play into an in-memory device instead of ALSA")
	fs.StringVar(&record, "record", "", "Also write everything played to this WAV file")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintln(fs.Output(), "Plays a sine tone through a looping circular sound buffer.")
		fmt.Fprintln(fs.Output(), "\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	var drv soundout.Driver
	if null {
		drv = memdev.New(memdev.WithClock(interval))
	} else {
		d, err := alsa.ParseName(deviceName)
		if err != nil {
			return fmt.Errorf("parsing device name: %w", err)
		}
		drv = d
	}

	config := soundout.Config{
		SampleRate: rate,
		Stereo:     !mono,
		LatencyMs:  latency,
	}

	snd, err := soundout.New(drv, config)
	if err != nil {
		return fmt.Errorf("opening sound device: %w", err)
	}
	defer snd.Close()

	format := snd.Format()

	var encoder *wav.Encoder
	if record != "" {
		wavFile, err := os.Create(record)
		if err != nil {
			return fmt.Errorf("creating WAV file: %w", err)
		}
		defer wavFile.Close()

		encoder = wav.NewEncoder(wavFile, format.SampleRate, soundout.BitsPerSample, format.Channels, 1)
		// Runs before wavFile.Close so the header sizes are written out.
		defer encoder.Close()
	}

	tone := soundout.NewToneGenerator(format, hz, amp)

	fill := func(lk *soundout.Locker) error {
		tone.Fill(lk)

		if encoder == nil || lk.Written() == 0 {
			return nil
		}

		return encoder.Write(lockerBuffer(lk, format))
	}

	if err := snd.Write(soundout.WriteAll, fill); err != nil {
		return fmt.Errorf("filling sound buffer: %w", err)
	}

	if err := snd.Play(); err != nil {
		return fmt.Errorf("starting playback: %w", err)
	}

	fmt.Printf("Playing %.0f Hz on %s: %s, %d byte buffer\n", hz, drvName(drv, deviceName), format, snd.BufferSize())
	fmt.Println("Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(duration)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()

	var playErr error

	for keepRunning := true; keepRunning; {
		select {
		case <-sigChan:
			fmt.Println("\nPlayback interrupted by user.")
			keepRunning = false
		case <-timeout:
			keepRunning = false
		case <-ticker.C:
			if err := snd.Write(soundout.WriteAll, fill); err != nil {
				playErr = fmt.Errorf("filling sound buffer: %w", err)
				keepRunning = false
			}
		}
	}

	if err := snd.Stop(true); err != nil {
		playErr = errors.Join(playErr, fmt.Errorf("stopping playback: %w", err))
	}

	fmt.Printf("Played for %v.\n", time.Since(start).Round(time.Millisecond))

	return playErr
}

// lockerBuffer converts the written part of a lock to an IntBuffer for the WAV encoder.
// The segments hold little-endian samples whatever the host byte order.
func lockerBuffer(lk *soundout.Locker, format soundout.Format) *audio.IntBuffer {
	n := lk.Written()
	n -= n % 2

	raw := make([]byte, 0, n)
	raw = append(raw, lk.Segment(soundout.First)...)
	raw = append(raw, lk.Segment(soundout.Second)...)
	raw = raw[:n]

	data := make([]int, n/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: soundout.BitsPerSample,
	}
}

func drvName(drv soundout.Driver, deviceName string) string {
	if _, ok := drv.(*memdev.Driver); ok {
		return "in-memory device"
	}

	return deviceName
}
