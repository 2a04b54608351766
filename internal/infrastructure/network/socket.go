package network

import (
	"NSSaDS/batchxfer/pkg/config"
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// ListenUDP binds a datagram socket on addr with the buffer sizes and TOS
// from cfg applied. When impairment is configured the socket is wrapped so
// outgoing datagrams pass through it.
func ListenUDP(ctx context.Context, addr string, cfg *config.UDPConfig, log *logrus.Entry) (net.PacketConn, *net.UDPConn, error) {
	lc := net.ListenConfig{Control: socketControl(cfg)}

	packetConn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	conn, ok := packetConn.(*net.UDPConn)
	if !ok {
		packetConn.Close()
		return nil, nil, fmt.Errorf("failed to get UDP connection")
	}

	if cfg.TOS > 0 {
		if err := ipv4.NewConn(conn).SetTOS(cfg.TOS); err != nil {
			log.WithError(err).WithField("tos", cfg.TOS).Warn("Failed to set IP TOS")
		}
	}

	if rcv, snd, err := socketBuffers(conn); err == nil {
		log.WithFields(logrus.Fields{
			"addr":     conn.LocalAddr().String(),
			"rcv_buf":  rcv,
			"snd_buf":  snd,
			"impaired": cfg.Impairment.Enabled(),
		}).Debug("Socket ready")
	}

	if cfg.Impairment.Enabled() {
		return NewImpairedConn(conn, cfg.Impairment), conn, nil
	}
	return conn, conn, nil
}
