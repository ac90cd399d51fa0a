package alsa

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PcmParams holds the hardware capabilities of a PCM device.
type PcmParams struct {
	params *sndPcmHwParams
}

// PcmParamsGetRefined opens the playback node of card and device and asks the kernel to restrict
// every parameter range to what the hardware supports.
func PcmParamsGetRefined(card, device uint) (*PcmParams, error) {
	file, err := openPlayback(card, device)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hwParams := &sndPcmHwParams{}
	paramInit(hwParams)

	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_HW_REFINE, uintptr(unsafe.Pointer(hwParams))); err != nil {
		return nil, fmt.Errorf("ioctl HW_REFINE failed: %w", err)
	}

	return &PcmParams{params: hwParams}, nil
}

// RangeMin returns the minimum value for an interval parameter.
func (pp *PcmParams) RangeMin(param PcmParam) (uint32, error) {
	interval, err := pp.interval(param)
	if err != nil {
		return 0, err
	}

	return interval.MinVal, nil
}

// RangeMax returns the maximum value for an interval parameter.
func (pp *PcmParams) RangeMax(param PcmParam) (uint32, error) {
	interval, err := pp.interval(param)
	if err != nil {
		return 0, err
	}

	return interval.MaxVal, nil
}

func (pp *PcmParams) interval(param PcmParam) (*sndInterval, error) {
	if pp == nil || pp.params == nil {
		return nil, fmt.Errorf("params not initialized")
	}

	if !isInterval(param) {
		return nil, fmt.Errorf("parameter %d is not an interval type", param)
	}

	return &pp.params.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS], nil
}

// Supports reports whether bit is set in the mask parameter param.
func (pp *PcmParams) Supports(param PcmParam, bit uint) bool {
	if pp == nil || pp.params == nil || !isMask(param) || bit >= sndMaskMax {
		return false
	}

	mask := &pp.params.Masks[param-SNDRV_PCM_HW_PARAM_ACCESS]

	return mask.Bits[bit>>5]&(1<<(bit&31)) != 0
}

// FormatIsSupported checks if a given PCM format is supported.
func (pp *PcmParams) FormatIsSupported(format PcmFormat) bool {
	return pp.Supports(SNDRV_PCM_HW_PARAM_FORMAT, uint(format))
}

// MmapIsSupported reports whether the device can be driven through an interleaved memory mapping.
func (pp *PcmParams) MmapIsSupported() bool {
	return pp.Supports(SNDRV_PCM_HW_PARAM_ACCESS, SNDRV_PCM_ACCESS_MMAP_INTERLEAVED)
}

// String returns a human-readable representation of the PCM device's capabilities.
func (pp *PcmParams) String() string {
	if pp == nil || pp.params == nil {
		return "<nil>"
	}

	var b strings.Builder

	var access []string
	for i, name := range PcmAccessNames {
		if pp.Supports(SNDRV_PCM_HW_PARAM_ACCESS, uint(i)) {
			access = append(access, name)
		}
	}
	if len(access) > 0 {
		fmt.Fprintf(&b, "%12s: %s\n", "Access", strings.Join(access, ", "))
	}

	formats := make([]PcmFormat, 0, len(PcmFormatNames))
	for f := range PcmFormatNames {
		if pp.FormatIsSupported(f) {
			formats = append(formats, f)
		}
	}
	slices.Sort(formats)

	if len(formats) > 0 {
		names := make([]string, len(formats))
		for i, f := range formats {
			names[i] = f.String()
		}
		fmt.Fprintf(&b, "%12s: %s\n", "Format", strings.Join(names, ", "))
	}

	printInterval := func(name string, param PcmParam, unit string) {
		rangeMin, _ := pp.RangeMin(param)
		rangeMax, _ := pp.RangeMax(param)

		// Unbounded ranges carry no information.
		if rangeMax == 0 || rangeMax == ^uint32(0) {
			return
		}

		fmt.Fprintf(&b, "%12s: min=%-6d max=%-6d %s\n", name, rangeMin, rangeMax, unit)
	}

	printInterval("Rate", SNDRV_PCM_HW_PARAM_RATE, "Hz")
	printInterval("Channels", SNDRV_PCM_HW_PARAM_CHANNELS, "")
	printInterval("Sample bits", SNDRV_PCM_HW_PARAM_SAMPLE_BITS, "")
	printInterval("Buffer size", SNDRV_PCM_HW_PARAM_BUFFER_SIZE, "frames")
	printInterval("Period size", SNDRV_PCM_HW_PARAM_PERIOD_SIZE, "frames")
	printInterval("Periods", SNDRV_PCM_HW_PARAM_PERIODS, "")

	return b.String()
}

// refine checks that the device behind file can play interleaved S16_LE through a memory
// mapping at the given rate and channel count.
func refine(file *os.File, rate, channels uint32) (*sndPcmHwParams, error) {
	hwParams := &sndPcmHwParams{}
	paramInit(hwParams)

	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_ACCESS, SNDRV_PCM_ACCESS_MMAP_INTERLEAVED)
	paramSetMask(hwParams, SNDRV_PCM_HW_PARAM_FORMAT, uint32(SNDRV_PCM_FORMAT_S16_LE))
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_CHANNELS, channels)
	paramSetInt(hwParams, SNDRV_PCM_HW_PARAM_RATE, rate)

	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_HW_REFINE, uintptr(unsafe.Pointer(hwParams))); err != nil {
		return nil, fmt.Errorf("ioctl HW_REFINE failed: %w", err)
	}

	if paramIsEmpty(hwParams, SNDRV_PCM_HW_PARAM_RATE) || paramIsEmpty(hwParams, SNDRV_PCM_HW_PARAM_CHANNELS) {
		return nil, fmt.Errorf("hardware cannot play %d channels at %d Hz: %w", channels, rate, unix.EINVAL)
	}

	return hwParams, nil
}

func isMask(param PcmParam) bool {
	return param >= SNDRV_PCM_HW_PARAM_ACCESS && param <= SNDRV_PCM_HW_PARAM_SUBFORMAT
}

func isInterval(param PcmParam) bool {
	return param >= SNDRV_PCM_HW_PARAM_SAMPLE_BITS && param <= SNDRV_PCM_HW_PARAM_TICK_TIME
}

// paramInit initializes a sndPcmHwParams struct to allow all possible values.
func paramInit(p *sndPcmHwParams) {
	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Mres {
		for i := range p.Mres[n].Bits {
			p.Mres[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n] = sndInterval{MinVal: 0, MaxVal: ^uint32(0)}
	}

	for n := range p.Ires {
		p.Ires[n] = sndInterval{MinVal: 0, MaxVal: ^uint32(0)}
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)
}

// paramSetMask restricts a mask parameter to the single value bit.
func paramSetMask(p *sndPcmHwParams, param PcmParam, bit uint32) {
	if !isMask(param) || bit >= sndMaskMax {
		return
	}

	mask := &p.Masks[param-SNDRV_PCM_HW_PARAM_ACCESS]
	clear(mask.Bits[:])
	mask.Bits[bit>>5] |= 1 << (bit & 31)
}

// paramSetInt restricts an interval parameter to the single integer val.
func paramSetInt(p *sndPcmHwParams, param PcmParam, val uint32) {
	if !isInterval(param) {
		return
	}

	p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS] = sndInterval{
		MinVal: val,
		MaxVal: val,
		Flags:  SNDRV_PCM_INTERVAL_INTEGER,
	}
}

func paramSetMin(p *sndPcmHwParams, param PcmParam, val uint32) {
	if !isInterval(param) {
		return
	}

	p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MinVal = val
}

// paramGetInt returns the value the driver narrowed an interval parameter to.
func paramGetInt(p *sndPcmHwParams, param PcmParam) uint32 {
	if !isInterval(param) {
		return 0
	}

	return p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MinVal
}

func paramIsEmpty(p *sndPcmHwParams, param PcmParam) bool {
	if !isInterval(param) {
		return true
	}

	interval := p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS]

	return interval.Flags&SNDRV_PCM_INTERVAL_EMPTY != 0 || interval.MinVal > interval.MaxVal
}
