// Package alsa implements soundout.Driver on top of the Linux ALSA kernel interface.
//
// The circular buffer is a memory-mapped PCM stream configured so the hardware plays it in a loop:
// both the start and stop thresholds are set to the stream boundary, so playback neither starts
// on its own nor stops when the application falls behind. Only direct hardware devices
// (/dev/snd/pcmC*D*p) are supported; the ALSA plugin layer is not.
package alsa

// PcmFormat defines the sample format for a PCM stream.
// These values correspond to the SNDRV_PCM_FORMAT_* constants in the ALSA kernel headers.
type PcmFormat int32

const (
	SNDRV_PCM_FORMAT_S8         PcmFormat = 0
	SNDRV_PCM_FORMAT_U8         PcmFormat = 1
	SNDRV_PCM_FORMAT_S16_LE     PcmFormat = 2
	SNDRV_PCM_FORMAT_S16_BE     PcmFormat = 3
	SNDRV_PCM_FORMAT_U16_LE     PcmFormat = 4
	SNDRV_PCM_FORMAT_U16_BE     PcmFormat = 5
	SNDRV_PCM_FORMAT_S24_LE     PcmFormat = 6
	SNDRV_PCM_FORMAT_S24_BE     PcmFormat = 7
	SNDRV_PCM_FORMAT_U24_LE     PcmFormat = 8
	SNDRV_PCM_FORMAT_U24_BE     PcmFormat = 9
	SNDRV_PCM_FORMAT_S32_LE     PcmFormat = 10
	SNDRV_PCM_FORMAT_S32_BE     PcmFormat = 11
	SNDRV_PCM_FORMAT_U32_LE     PcmFormat = 12
	SNDRV_PCM_FORMAT_U32_BE     PcmFormat = 13
	SNDRV_PCM_FORMAT_FLOAT_LE   PcmFormat = 14
	SNDRV_PCM_FORMAT_FLOAT_BE   PcmFormat = 15
	SNDRV_PCM_FORMAT_FLOAT64_LE PcmFormat = 16
	SNDRV_PCM_FORMAT_FLOAT64_BE PcmFormat = 17
	SNDRV_PCM_FORMAT_S24_3LE    PcmFormat = 32
	SNDRV_PCM_FORMAT_S24_3BE    PcmFormat = 33
)

// PcmFormatNames maps formats to their ALSA names.
var PcmFormatNames = map[PcmFormat]string{
	SNDRV_PCM_FORMAT_S8:         "S8",
	SNDRV_PCM_FORMAT_U8:         "U8",
	SNDRV_PCM_FORMAT_S16_LE:     "S16_LE",
	SNDRV_PCM_FORMAT_S16_BE:     "S16_BE",
	SNDRV_PCM_FORMAT_U16_LE:     "U16_LE",
	SNDRV_PCM_FORMAT_U16_BE:     "U16_BE",
	SNDRV_PCM_FORMAT_S24_LE:     "S24_LE",
	SNDRV_PCM_FORMAT_S24_BE:     "S24_BE",
	SNDRV_PCM_FORMAT_U24_LE:     "U24_LE",
	SNDRV_PCM_FORMAT_U24_BE:     "U24_BE",
	SNDRV_PCM_FORMAT_S32_LE:     "S32_LE",
	SNDRV_PCM_FORMAT_S32_BE:     "S32_BE",
	SNDRV_PCM_FORMAT_U32_LE:     "U32_LE",
	SNDRV_PCM_FORMAT_U32_BE:     "U32_BE",
	SNDRV_PCM_FORMAT_FLOAT_LE:   "FLOAT_LE",
	SNDRV_PCM_FORMAT_FLOAT_BE:   "FLOAT_BE",
	SNDRV_PCM_FORMAT_FLOAT64_LE: "FLOAT64_LE",
	SNDRV_PCM_FORMAT_FLOAT64_BE: "FLOAT64_BE",
	SNDRV_PCM_FORMAT_S24_3LE:    "S24_3LE",
	SNDRV_PCM_FORMAT_S24_3BE:    "S24_3BE",
}

// String returns the ALSA name of the format.
func (f PcmFormat) String() string {
	if name, ok := PcmFormatNames[f]; ok {
		return name
	}

	return "UNKNOWN"
}

// PcmState defines the current state of a PCM stream.
// These values correspond to the SNDRV_PCM_STATE_* constants.
type PcmState int32

const (
	SNDRV_PCM_STATE_OPEN         PcmState = 0 // Stream is open.
	SNDRV_PCM_STATE_SETUP        PcmState = 1 // Stream has a setup.
	SNDRV_PCM_STATE_PREPARED     PcmState = 2 // Stream is ready to start.
	SNDRV_PCM_STATE_RUNNING      PcmState = 3 // Stream is running.
	SNDRV_PCM_STATE_XRUN         PcmState = 4 // Stream reached an underrun or overrun.
	SNDRV_PCM_STATE_DRAINING     PcmState = 5 // Stream is draining.
	SNDRV_PCM_STATE_PAUSED       PcmState = 6 // Stream is paused.
	SNDRV_PCM_STATE_SUSPENDED    PcmState = 7 // Hardware is suspended.
	SNDRV_PCM_STATE_DISCONNECTED PcmState = 8 // Hardware is disconnected.
)

var pcmStateNames = [...]string{"OPEN", "SETUP", "PREPARED", "RUNNING", "XRUN", "DRAINING", "PAUSED", "SUSPENDED", "DISCONNECTED"}

// String returns the name of the state.
func (s PcmState) String() string {
	if s < 0 || int(s) >= len(pcmStateNames) {
		return "UNKNOWN"
	}

	return pcmStateNames[s]
}

// PcmParam identifies a hardware parameter for a PCM device.
// These values correspond to the SNDRV_PCM_HW_PARAM_* constants.
type PcmParam int

const (
	SNDRV_PCM_HW_PARAM_ACCESS       PcmParam = 0
	SNDRV_PCM_HW_PARAM_FORMAT       PcmParam = 1
	SNDRV_PCM_HW_PARAM_SUBFORMAT    PcmParam = 2
	SNDRV_PCM_HW_PARAM_SAMPLE_BITS  PcmParam = 8
	SNDRV_PCM_HW_PARAM_FRAME_BITS   PcmParam = 9
	SNDRV_PCM_HW_PARAM_CHANNELS     PcmParam = 10
	SNDRV_PCM_HW_PARAM_RATE         PcmParam = 11
	SNDRV_PCM_HW_PARAM_PERIOD_TIME  PcmParam = 12
	SNDRV_PCM_HW_PARAM_PERIOD_SIZE  PcmParam = 13
	SNDRV_PCM_HW_PARAM_PERIOD_BYTES PcmParam = 14
	SNDRV_PCM_HW_PARAM_PERIODS      PcmParam = 15
	SNDRV_PCM_HW_PARAM_BUFFER_TIME  PcmParam = 16
	SNDRV_PCM_HW_PARAM_BUFFER_SIZE  PcmParam = 17
	SNDRV_PCM_HW_PARAM_BUFFER_BYTES PcmParam = 18
	SNDRV_PCM_HW_PARAM_TICK_TIME    PcmParam = 19
)

// PCM access types.
const (
	SNDRV_PCM_ACCESS_MMAP_INTERLEAVED    = 0
	SNDRV_PCM_ACCESS_MMAP_NONINTERLEAVED = 1
	SNDRV_PCM_ACCESS_MMAP_COMPLEX        = 2
	SNDRV_PCM_ACCESS_RW_INTERLEAVED      = 3
	SNDRV_PCM_ACCESS_RW_NONINTERLEAVED   = 4
)

// PcmAccessNames provides names for PCM access types, indexed by SNDRV_PCM_ACCESS_* value.
var PcmAccessNames = []string{
	"MMAP_INTERLEAVED",
	"MMAP_NONINTERLEAVED",
	"MMAP_COMPLEX",
	"RW_INTERLEAVED",
	"RW_NONINTERLEAVED",
}

// Bits of snd_interval.flags.
const (
	SNDRV_PCM_INTERVAL_OPENMIN = 1 << 0
	SNDRV_PCM_INTERVAL_OPENMAX = 1 << 1
	SNDRV_PCM_INTERVAL_INTEGER = 1 << 2
	SNDRV_PCM_INTERVAL_EMPTY   = 1 << 3
)

// Flags of snd_pcm_sync_ptr. A set APPL or AVAIL_MIN flag reads the value from the kernel
// instead of writing it.
const (
	SNDRV_PCM_SYNC_PTR_HWSYNC    = 1 << 0
	SNDRV_PCM_SYNC_PTR_APPL      = 1 << 1
	SNDRV_PCM_SYNC_PTR_AVAIL_MIN = 1 << 2
)

// SNDRV_PCM_TSTAMP_ENABLE enables timestamps in the status structure.
const SNDRV_PCM_TSTAMP_ENABLE = 1

// sndMaskMax is the number of bits in a hardware parameter mask.
const sndMaskMax = 256
