package glitch

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlStruct issues an ioctl that takes a pointer to an arbitrary
// struct, for requests golang.org/x/sys/unix has no typed wrapper for
// (TIOCGSERIAL/TIOCSSERIAL).
func ioctlStruct(fd int, req uint, arg *serialStruct) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(arg)))
	if errno != 0 {
		return errno
	}
	return nil
}
