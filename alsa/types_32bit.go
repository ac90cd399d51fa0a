//go:build linux && (386 || arm)

package alsa

import (
	"math"

	"golang.org/x/sys/unix"
)

// SndPcmUframesT is an unsigned long in the ALSA headers.
type SndPcmUframesT = uint32

// maxSframes is the largest value of the signed snd_pcm_sframes_t.
const maxSframes = math.MaxInt32

// sndPcmMmapStatus contains the status of a PCM stream, using 32-bit timestamps.
type sndPcmMmapStatus struct {
	State          PcmState
	Pad1           int32
	HwPtr          SndPcmUframesT
	Tstamp         unix.Timespec
	SuspendedState PcmState
	AudioTstamp    unix.Timespec
}

// sndPcmSyncPtr is the argument of SNDRV_PCM_IOCTL_SYNC_PTR.
// Both unions are 64 bytes and 4-byte aligned.
type sndPcmSyncPtr struct {
	Flags uint32
	S     struct {
		sndPcmMmapStatus
		_ [32]byte
	}
	C struct {
		sndPcmMmapControl
		_ [56]byte
	}
}

// sndPcmSwParams contains software parameters for a PCM device.
type sndPcmSwParams struct {
	TstampMode       uint32
	PeriodStep       uint32
	SleepMin         uint32
	AvailMin         SndPcmUframesT
	XferAlign        SndPcmUframesT
	StartThreshold   SndPcmUframesT
	StopThreshold    SndPcmUframesT
	SilenceThreshold SndPcmUframesT
	SilenceSize      SndPcmUframesT
	Boundary         SndPcmUframesT
	Reserved         [64]byte
}
