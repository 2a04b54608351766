//go:build !unix

package network

import (
	"NSSaDS/batchxfer/pkg/config"
	"errors"
	"net"
	"syscall"
)

func socketControl(cfg *config.UDPConfig) func(network, address string, c syscall.RawConn) error {
	return nil
}

func socketBuffers(conn *net.UDPConn) (rcv, snd int, err error) {
	return 0, 0, errors.New("socket buffer query not supported")
}
