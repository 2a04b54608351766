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

// UDPServer owns the receiver's socket.
type UDPServer struct {
	config    *config.ReceiverConfig
	udpConfig *config.UDPConfig
	log       *logrus.Entry
	conn      net.PacketConn
	udpConn   *net.UDPConn
}

func NewUDPServer(cfg *config.ReceiverConfig, udpCfg *config.UDPConfig, log *logrus.Logger) *UDPServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UDPServer{
		config:    cfg,
		udpConfig: udpCfg,
		log:       logrus.NewEntry(log),
	}
}

func (s *UDPServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	conn, udpConn, err := ListenUDP(ctx, addr, s.udpConfig, s.log)
	if err != nil {
		return fmt.Errorf("failed to start UDP server: %w", err)
	}
	s.conn = conn
	s.udpConn = udpConn

	s.log.WithField("addr", udpConn.LocalAddr().String()).Info("UDP receiver listening")
	return nil
}

func (s *UDPServer) Addr() net.Addr {
	if s.udpConn == nil {
		return nil
	}
	return s.udpConn.LocalAddr()
}

// Receive runs one transfer session into sink.
func (s *UDPServer) Receive(ctx context.Context, sink domain.Sink) (*domain.TransferStats, error) {
	if s.conn == nil {
		return &domain.TransferStats{}, fmt.Errorf("server not started")
	}

	cadence, err := domain.ParseCadence(s.config.Cadence)
	if err != nil {
		return &domain.TransferStats{}, err
	}
	policy, err := domain.ParseAckPolicy(s.config.AckPolicy)
	if err != nil {
		return &domain.TransferStats{}, err
	}

	receiver := usecase.NewReceiver(s.conn, usecase.ReceiverOptions{
		Cadence:   cadence,
		AckPolicy: policy,
		Linger:    s.config.Linger,
	}, s.log)
	return receiver.Receive(ctx, sink)
}

func (s *UDPServer) Stop() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
