//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package static

import "errors"

var errSockoptUnsupported = errors.New("socket option not supported on this platform")

// Windows の SO_REUSEADDR は他プロセスのポートを奪えてしまうため設定しない
const reusePortSupported = false

func setReuseAddr(uintptr) error {
	return errSockoptUnsupported
}

func setReusePort(uintptr) error {
	return errSockoptUnsupported
}
