package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"

	"github.com/gen2brain/soundout"
	"github.com/gen2brain/soundout/alsa"
)

func main() {
	var (
		deviceName string
		latency    int
	)

	flag.StringVar(&deviceName, "device", "", "Show the hardware capabilities of this playback device (e.g. hw:0,0)")
	flag.IntVar(&latency, "latency", 200, "The circular buffer size in milliseconds used for the WAV buffer estimate")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [wav-file]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Lists sound cards, or shows a device's capabilities or a WAV file's format.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	switch {
	case flag.NArg() == 1:
		wavInfo(flag.Arg(0), latency)
	case flag.NArg() > 1:
		flag.Usage()
		os.Exit(1)
	case deviceName != "":
		deviceInfo(deviceName)
	default:
		listCards()
	}
}

func listCards() {
	cards, err := alsa.EnumerateCards()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error enumerating sound cards: %v\n", err)
		os.Exit(1)
	}

	if len(cards) == 0 {
		fmt.Println("No sound cards found.")

		return
	}

	for _, card := range cards {
		fmt.Print(card)
	}
}

func deviceInfo(name string) {
	drv, err := alsa.ParseName(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing device name: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("PCM card %d, device %d, stream playback:\n", drv.Card, drv.Device)

	params, err := alsa.PcmParamsGetRefined(drv.Card, drv.Device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting PCM parameters: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(params)

	usable := params.MmapIsSupported() && params.FormatIsSupported(alsa.SNDRV_PCM_FORMAT_S16_LE)
	fmt.Printf("Usable for a circular buffer session: %t\n", usable)
}

func wavInfo(path string, latency int) {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		fmt.Fprintln(os.Stderr, "Invalid WAV file")
		os.Exit(1)
	}

	formatStr := "Signed Integer PCM"
	if decoder.WavAudioFormat == 3 {
		formatStr = "IEEE Float"
	}

	fmt.Printf("Filename:           %s\n", path)
	fmt.Printf("Channels:           %d\n", decoder.NumChans)
	fmt.Printf("Sample Rate:        %d Hz\n", decoder.SampleRate)
	fmt.Printf("Bits Per Sample:    %d\n", decoder.BitDepth)
	fmt.Printf("Format:             %s\n", formatStr)

	duration, err := decoder.Duration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get duration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Duration:           %s\n", formatDuration(duration))
	fmt.Printf("Frames:             %d\n", int(duration.Seconds()*float64(decoder.SampleRate)))

	config := soundout.Config{
		SampleRate: int(decoder.SampleRate),
		Stereo:     decoder.NumChans == 2,
		LatencyMs:  latency,
	}

	if decoder.WavAudioFormat == 3 || decoder.NumChans > 2 {
		fmt.Println("Playback:           not supported")

		return
	}

	if err := config.Validate(); err != nil {
		fmt.Printf("Playback:           not supported (%v)\n", err)

		return
	}

	fmt.Printf("Playback:           %s, %d byte buffer at %d ms\n", config.Format(), config.Format().BufferBytes(latency), latency)
}

// formatDuration formats a time.Duration as HH:MM:SS.ms.
func formatDuration(d time.Duration) string {
	millis := d.Milliseconds() % 1000
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
