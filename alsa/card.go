package alsa

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SoundCardDevice is a single PCM device on a sound card.
type SoundCardDevice struct {
	ID          int
	Name        string
	Description string
	Playback    bool
	Capture     bool
}

// String returns a human-readable representation of the SoundCardDevice.
func (d SoundCardDevice) String() string {
	var streams []string
	if d.Playback {
		streams = append(streams, "Playback")
	}
	if d.Capture {
		streams = append(streams, "Capture")
	}

	return fmt.Sprintf("  Device %d: %s (%s) [%s]", d.ID, d.Name, d.Description, strings.Join(streams, ", "))
}

// SoundCard is an enumerated sound card with its PCM devices.
type SoundCard struct {
	ID          int
	Name        string
	Description string
	Devices     []SoundCardDevice
}

// String returns a human-readable representation of the SoundCard.
func (c SoundCard) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Card %d: %s (%s)\n", c.ID, c.Name, c.Description)
	for _, dev := range c.Devices {
		sb.WriteString(dev.String() + "\n")
	}

	return sb.String()
}

// PlaybackDevice returns the device with the given number if it has a playback stream.
func (c SoundCard) PlaybackDevice(device int) (SoundCardDevice, bool) {
	for _, dev := range c.Devices {
		if dev.ID == device && dev.Playback {
			return dev, true
		}
	}

	return SoundCardDevice{}, false
}

// EnumerateCards scans /proc/asound to find all available sound cards and their PCM devices.
func EnumerateCards() ([]SoundCard, error) {
	const cardsFile = "/proc/asound/cards"
	cards, err := os.ReadFile(cardsFile)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", cardsFile, err)
	}

	// The file is missing when no card has a PCM device.
	const pcmFile = "/proc/asound/pcm"
	pcm, err := os.ReadFile(pcmFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("could not read %s: %w", pcmFile, err)
	}

	return parseCards(string(cards), string(pcm)), nil
}

var (
	// " 0 [Loopback       ]: Loopback - Loopback"
	cardRegex = regexp.MustCompile(`^\s*(\d+)\s+\[\s*([^]]*?)\s*\]:\s*(.*)`)
	// "02-00: Loopback PCM : Loopback PCM : playback 8 : capture 8"
	pcmRegex = regexp.MustCompile(`^(\d+)-(\d+): (.*?) :.*`)
)

// parseCards builds the card list from the contents of /proc/asound/cards and /proc/asound/pcm.
func parseCards(cards, pcm string) []SoundCard {
	cardMap := make(map[int]*SoundCard)

	for _, line := range strings.Split(cards, "\n") {
		matches := cardRegex.FindStringSubmatch(line)
		if len(matches) != 4 {
			continue
		}

		id, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		cardMap[id] = &SoundCard{
			ID:          id,
			Name:        strings.TrimSpace(matches[2]),
			Description: strings.TrimSpace(matches[3]),
		}
	}

	for _, line := range strings.Split(pcm, "\n") {
		matches := pcmRegex.FindStringSubmatch(line)
		if len(matches) < 4 {
			continue
		}

		cardID, _ := strconv.Atoi(matches[1])
		devID, _ := strconv.Atoi(matches[2])

		card, ok := cardMap[cardID]
		if !ok {
			continue
		}

		card.Devices = append(card.Devices, SoundCardDevice{
			ID:          devID,
			Name:        fmt.Sprintf("hw:%d,%d", cardID, devID),
			Description: strings.TrimSpace(matches[3]),
			Playback:    strings.Contains(line, "playback"),
			Capture:     strings.Contains(line, "capture"),
		})
	}

	ids := make([]int, 0, len(cardMap))
	for id := range cardMap {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	result := make([]SoundCard, 0, len(ids))
	for _, id := range ids {
		result = append(result, *cardMap[id])
	}

	return result
}

// ParseName parses a device name in the format "hw:C,D" or "hw:C".
func ParseName(name string) (*Driver, error) {
	rest, ok := strings.CutPrefix(name, "hw:")
	if !ok {
		return nil, fmt.Errorf("invalid PCM name %q: missing 'hw:' prefix", name)
	}

	cardStr, deviceStr, hasDevice := strings.Cut(rest, ",")

	card, err := strconv.ParseUint(cardStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid card number '%s': %w", cardStr, err)
	}

	var device uint64
	if hasDevice {
		device, err = strconv.ParseUint(deviceStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid device number '%s': %w", deviceStr, err)
		}
	}

	return &Driver{Card: uint(card), Device: uint(device)}, nil
}

func playbackPath(card, device uint) string {
	return fmt.Sprintf("/dev/snd/pcmC%dD%dp", card, device)
}

// openPlayback opens the playback node of a device. It never blocks waiting for a busy device.
func openPlayback(card, device uint) (*os.File, error) {
	path := playbackPath(card, device)

	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCM device %s: %w", path, err)
	}

	return file, nil
}
