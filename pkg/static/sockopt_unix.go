//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package static

import (
	"golang.org/x/sys/unix"
)

const reusePortSupported = true

func setReuseAddr(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func setReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
