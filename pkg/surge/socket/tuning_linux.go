//go:build linux

package socket

import "golang.org/x/sys/unix"

// applyListenOptions applies bind-time options on Linux.
func applyListenOptions(fd int, cfg *Config) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	if cfg.ReusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return err
		}
	}
	return nil
}

// applyConnOptions applies per-connection options on Linux. All are
// best-effort.
func applyConnOptions(fd int, cfg *Config) {
	// Detect dead peers well before the kernel's two-hour default so the
	// endpoint's connection registry does not accumulate zombies.
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, 10000)

	if cfg.KeepAlive {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 60)
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 10)
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 3)
	}
}
