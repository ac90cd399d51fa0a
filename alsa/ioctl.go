package alsa

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl performs a generic ioctl syscall.
func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}

	return nil
}

// Directions of an ioctl request, from the point of view of the application.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

// ioc encodes an ioctl request number the way the _IOC macro of asm-generic/ioctl.h does.
func ioc(dir, typ, nr, size uintptr) uintptr {
	const (
		nrBits   = 8
		typeBits = 8
		sizeBits = 14

		nrShift   = 0
		typeShift = nrShift + nrBits
		sizeShift = typeShift + typeBits
		dirShift  = sizeShift + sizeBits
	)

	return dir<<dirShift | typ<<typeShift | nr<<nrShift | size<<sizeShift
}

func io(typ, nr uintptr) uintptr         { return ioc(iocNone, typ, nr, 0) }
func iow(typ, nr, size uintptr) uintptr  { return ioc(iocWrite, typ, nr, size) }
func ior(typ, nr, size uintptr) uintptr  { return ioc(iocRead, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

var (
	SNDRV_PCM_IOCTL_INFO      = ior('A', 0x01, unsafe.Sizeof(sndPcmInfo{}))
	SNDRV_PCM_IOCTL_HW_REFINE = iowr('A', 0x10, unsafe.Sizeof(sndPcmHwParams{}))
	SNDRV_PCM_IOCTL_HW_PARAMS = iowr('A', 0x11, unsafe.Sizeof(sndPcmHwParams{}))
	SNDRV_PCM_IOCTL_HW_FREE   = io('A', 0x12)
	SNDRV_PCM_IOCTL_SW_PARAMS = iowr('A', 0x13, unsafe.Sizeof(sndPcmSwParams{}))
	SNDRV_PCM_IOCTL_SYNC_PTR  = iowr('A', 0x23, unsafe.Sizeof(sndPcmSyncPtr{}))
	SNDRV_PCM_IOCTL_PREPARE   = io('A', 0x40)
	SNDRV_PCM_IOCTL_START     = io('A', 0x42)
	SNDRV_PCM_IOCTL_DROP      = io('A', 0x43)
	SNDRV_PCM_IOCTL_PAUSE     = iow('A', 0x45, unsafe.Sizeof(int32(0)))
	SNDRV_PCM_IOCTL_RESUME    = io('A', 0x47)
)
