package network

import (
	"NSSaDS/batchxfer/internal/domain"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// PerformanceMonitor keeps the statistics of the last transfer for
// reporting. It plays no part in the protocol.
type PerformanceMonitor struct {
	mu       sync.RWMutex
	role     Role
	filename string
	stats    domain.TransferStats
	err      error
	log      *logrus.Entry
}

func NewPerformanceMonitor(role Role, log *logrus.Logger) *PerformanceMonitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PerformanceMonitor{
		role: role,
		log:  log.WithField("component", "performance"),
	}
}

func (pm *PerformanceMonitor) Record(filename string, stats *domain.TransferStats, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.filename = filename
	if stats != nil {
		pm.stats = *stats
	}
	pm.err = err
}

// bytes is the byte count that throughput is computed over: channel load
// for the sender, delivered bytes for the receiver.
func (pm *PerformanceMonitor) bytes() int64 {
	if pm.role == RoleSender {
		return pm.stats.BytesSent
	}
	return pm.stats.BytesReceived
}

func (pm *PerformanceMonitor) ThroughputMbps() float64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats.ThroughputMbps(pm.bytes())
}

func (pm *PerformanceMonitor) PrintReport(w io.Writer) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	elapsed := pm.stats.Elapsed()
	ms := float64(elapsed.Microseconds()) / 1000

	fmt.Fprintf(w, "\n=== Transfer Report (%s) ===\n", pm.role)
	fmt.Fprintf(w, "Transfer: %s\n", pm.stats.ID)
	fmt.Fprintf(w, "File: %s\n", pm.filename)
	if pm.err != nil {
		fmt.Fprintf(w, "Result: FAILED (%v)\n", pm.err)
	} else {
		fmt.Fprintf(w, "Result: OK\n")
	}

	switch pm.role {
	case RoleSender:
		fmt.Fprintf(w, "Sent %d bytes (%d payload) in %.3f ms\n", pm.stats.BytesSent, pm.stats.TotalBytes, ms)
		fmt.Fprintf(w, "Units: %d, Batches: %d\n", pm.stats.Units, pm.stats.Batches)
		fmt.Fprintf(w, "Timeouts: %d, Partial acks: %d, Stale acks: %d, Retransmissions: %d\n",
			pm.stats.Timeouts, pm.stats.PartialAcks, pm.stats.StaleAcks, pm.stats.Retransmissions)
	case RoleReceiver:
		fmt.Fprintf(w, "Received %d bytes in %.3f ms\n", pm.stats.BytesReceived, ms)
		fmt.Fprintf(w, "Units: %d, Duplicates: %d, Out of order: %d, Malformed: %d, Acks sent: %d\n",
			pm.stats.UnitsAccepted, pm.stats.Duplicates, pm.stats.OutOfOrder, pm.stats.Malformed, pm.stats.AcksSent)
	}
	fmt.Fprintf(w, "Throughput: %.3f Mbps\n", pm.stats.ThroughputMbps(pm.bytes()))
	fmt.Fprintf(w, "========================\n")

	pm.log.WithFields(logrus.Fields{
		"transfer":        pm.stats.ID,
		"role":            pm.role,
		"bytes":           pm.bytes(),
		"elapsed":         elapsed,
		"throughput_mbps": pm.stats.ThroughputMbps(pm.bytes()),
	}).Debug("Report printed")
}
