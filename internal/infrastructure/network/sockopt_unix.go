//go:build unix

package network

import (
	"NSSaDS/batchxfer/pkg/config"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(cfg *config.UDPConfig) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if cfg.ReadBuffer > 0 {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.ReadBuffer); opErr != nil {
					opErr = fmt.Errorf("SO_RCVBUF: %w", opErr)
					return
				}
			}
			if cfg.WriteBuffer > 0 {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.WriteBuffer); opErr != nil {
					opErr = fmt.Errorf("SO_SNDBUF: %w", opErr)
				}
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// socketBuffers reports the kernel's effective buffer sizes.
func socketBuffers(conn *net.UDPConn) (rcv, snd int, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var opErr error
	err = raw.Control(func(fd uintptr) {
		if rcv, opErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF); opErr != nil {
			return
		}
		snd, opErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF)
	})
	if err != nil {
		return 0, 0, err
	}
	return rcv, snd, opErr
}
