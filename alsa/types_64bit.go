//go:build linux && (amd64 || arm64 || riscv64 || ppc64le || loong64)

package alsa

import (
	"math"

	"golang.org/x/sys/unix"
)

// SndPcmUframesT is an unsigned long in the ALSA headers.
type SndPcmUframesT = uint64

// maxSframes is the largest value of the signed snd_pcm_sframes_t.
const maxSframes = math.MaxInt64

// sndPcmMmapStatus contains the status of a PCM stream.
type sndPcmMmapStatus struct {
	State          PcmState
	Pad1           int32
	HwPtr          SndPcmUframesT
	Tstamp         unix.Timespec
	SuspendedState PcmState
	_              [4]byte
	AudioTstamp    unix.Timespec
}

// sndPcmSyncPtr is the argument of SNDRV_PCM_IOCTL_SYNC_PTR.
// Both unions are 64 bytes and 8-byte aligned.
type sndPcmSyncPtr struct {
	Flags uint32
	_     [4]byte
	S     struct {
		sndPcmMmapStatus
		_ [8]byte
	}
	C struct {
		sndPcmMmapControl
		_ [48]byte
	}
}

// sndPcmSwParams contains software parameters for a PCM device.
type sndPcmSwParams struct {
	TstampMode       uint32
	PeriodStep       uint32
	SleepMin         uint32
	_                [4]byte
	AvailMin         SndPcmUframesT
	XferAlign        SndPcmUframesT
	StartThreshold   SndPcmUframesT
	StopThreshold    SndPcmUframesT
	SilenceThreshold SndPcmUframesT
	SilenceSize      SndPcmUframesT
	Boundary         SndPcmUframesT
	Reserved         [64]byte
}
