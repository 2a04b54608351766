package network

import (
	"NSSaDS/batchxfer/internal/domain"
	"NSSaDS/batchxfer/internal/usecase"
	"NSSaDS/batchxfer/pkg/config"
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
)

// UDPClient owns the sender's socket and the receiver's address.
type UDPClient struct {
	config     *config.SenderConfig
	udpConfig  *config.UDPConfig
	log        *logrus.Entry
	conn       net.PacketConn
	serverAddr *net.UDPAddr
}

func NewUDPClient(cfg *config.SenderConfig, udpCfg *config.UDPConfig, log *logrus.Logger) *UDPClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UDPClient{
		config:    cfg,
		udpConfig: udpCfg,
		log:       logrus.NewEntry(log),
	}
}

func (c *UDPClient) Connect(ctx context.Context) error {
	var err error
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	c.serverAddr, err = net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve server address: %w", err)
	}

	local := ":0"
	if c.serverAddr.IP.To4() != nil {
		local = "0.0.0.0:0"
	}
	c.conn, _, err = ListenUDP(ctx, local, c.udpConfig, c.log)
	if err != nil {
		return fmt.Errorf("failed to create UDP socket: %w", err)
	}

	c.log.WithField("server", c.serverAddr.String()).Info("UDP sender ready")
	return nil
}

func (c *UDPClient) Disconnect() error {
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Send transfers payload to the server.
func (c *UDPClient) Send(ctx context.Context, payload []byte) (*domain.TransferStats, error) {
	if c.conn == nil {
		return &domain.TransferStats{}, fmt.Errorf("not connected to server")
	}

	cadence, err := domain.ParseCadence(c.config.Cadence)
	if err != nil {
		return &domain.TransferStats{}, err
	}

	sender := usecase.NewSender(c.conn, c.serverAddr, usecase.SenderOptions{
		UnitSize:   c.config.UnitSize,
		Cadence:    cadence,
		AckTimeout: c.config.AckTimeout,
		MaxRetries: c.config.MaxRetries,
	}, c.log)
	return sender.Send(ctx, payload)
}
