package usecase

import (
	"NSSaDS/batchxfer/internal/domain"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ReceiverOptions struct {
	// Cadence should match the sender's. It sets the acknowledgment cycle
	// under AckCadence.
	Cadence   domain.Cadence
	AckPolicy domain.AckPolicy
	// Linger keeps answering retransmissions with the final
	// acknowledgment after the transfer completes.
	Linger time.Duration
}

// Receiver accepts data units strictly in sequence and acknowledges them
// cumulatively.
type Receiver struct {
	conn net.PacketConn
	opts ReceiverOptions
	log  *logrus.Entry
}

type receiverState struct {
	expectedSeq uint32
	accepted    int
	cycle       *domain.Cycle

	finSeen bool
	finSeq  uint32

	lastBatchID uint32
	peer        net.Addr

	stats *domain.TransferStats
	buf   []byte
}

func (st *receiverState) complete() bool {
	return st.finSeen && st.expectedSeq == st.finSeq+1
}

func NewReceiver(conn net.PacketConn, opts ReceiverOptions, log *logrus.Entry) *Receiver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Receiver{
		conn: conn,
		opts: opts,
		log:  log.WithField("component", "receiver"),
	}
}

// Receive runs one session, appending accepted payloads to sink, until the
// unit carrying fin has been delivered or ctx is cancelled.
func (r *Receiver) Receive(ctx context.Context, sink domain.Sink) (*domain.TransferStats, error) {
	st := &receiverState{
		cycle: domain.NewCycle(r.opts.Cadence),
		stats: &domain.TransferStats{ID: uuid.NewString()},
		buf:   make([]byte, domain.MaxDatagramSize),
	}
	log := r.log.WithField("transfer", st.stats.ID)

	if err := r.conn.SetReadDeadline(time.Time{}); err != nil {
		return st.stats, fmt.Errorf("failed to clear read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	log.WithFields(logrus.Fields{
		"addr":       r.conn.LocalAddr().String(),
		"ack_policy": r.opts.AckPolicy.String(),
		"cadence":    r.opts.Cadence.String(),
	}).Info("Waiting for data units")

	for !st.complete() {
		n, addr, err := r.conn.ReadFrom(st.buf)
		if err != nil {
			st.stats.Finish()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return st.stats, ctxErr
			}
			return st.stats, fmt.Errorf("failed to receive data unit: %w", err)
		}
		if st.stats.StartedAt.IsZero() {
			st.stats.Start()
		}

		if err := r.handleDatagram(log, st, sink, st.buf[:n], addr); err != nil {
			st.stats.Finish()
			return st.stats, err
		}
	}

	if f, ok := sink.(domain.Flusher); ok {
		if err := f.Flush(); err != nil {
			st.stats.Finish()
			return st.stats, fmt.Errorf("failed to flush sink: %w", err)
		}
	}
	st.stats.Finish()
	st.stats.Units = st.expectedSeq
	st.stats.TotalBytes = st.stats.BytesReceived

	log.WithFields(logrus.Fields{
		"bytes":      st.stats.BytesReceived,
		"units":      st.stats.UnitsAccepted,
		"duplicates": st.stats.Duplicates,
		"acks":       st.stats.AcksSent,
		"elapsed":    st.stats.Elapsed(),
	}).Info("Transfer complete")

	if r.opts.Linger > 0 {
		r.linger(ctx, log, st)
	}
	return st.stats, nil
}

func (r *Receiver) handleDatagram(log *logrus.Entry, st *receiverState, sink domain.Sink, data []byte, addr net.Addr) error {
	unit, err := domain.DeserializeDataUnit(data)
	if err != nil {
		st.stats.Malformed++
		log.WithError(err).Trace("Discarding datagram")
		return nil
	}
	st.peer = addr
	st.lastBatchID = unit.BatchID

	switch {
	case unit.Seq == st.expectedSeq:
		if _, err := sink.Write(unit.Payload); err != nil {
			return fmt.Errorf("failed to write unit %d: %w", unit.Seq, err)
		}
		st.expectedSeq++
		st.accepted++
		st.stats.UnitsAccepted++
		st.stats.BytesReceived += int64(len(unit.Payload))
		if unit.Fin {
			st.finSeen = true
			st.finSeq = unit.Seq
		}

		if unit.Fin || st.accepted >= r.threshold(st) {
			r.sendAck(log, st)
			st.accepted = 0
			st.cycle.Advance()
		}

	case unit.Seq < st.expectedSeq:
		// Our acknowledgment may have been lost; repeat the cursor.
		st.stats.Duplicates++
		r.sendAck(log, st)

	default:
		st.stats.OutOfOrder++
	}
	return nil
}

func (r *Receiver) threshold(st *receiverState) int {
	if r.opts.AckPolicy == domain.AckEveryUnit {
		return 1
	}
	return st.cycle.Current()
}

// sendAck reports expectedSeq to the last peer seen. A failed write is
// treated like a lost acknowledgment.
func (r *Receiver) sendAck(log *logrus.Entry, st *receiverState) {
	ack := domain.NewAck(st.lastBatchID, st.expectedSeq)
	if _, err := r.conn.WriteTo(ack.Serialize(), st.peer); err != nil {
		log.WithError(err).WithField("ack", ack.String()).Warn("Failed to send ack")
		return
	}
	st.stats.AcksSent++
	st.stats.LastNextSeq = st.expectedSeq
}

func (r *Receiver) linger(ctx context.Context, log *logrus.Entry, st *receiverState) {
	if ctx.Err() != nil {
		return
	}
	if err := r.conn.SetReadDeadline(time.Now().Add(r.opts.Linger)); err != nil {
		return
	}
	defer r.conn.SetReadDeadline(time.Time{})

	for ctx.Err() == nil {
		n, addr, err := r.conn.ReadFrom(st.buf)
		if err != nil {
			return
		}
		unit, err := domain.DeserializeDataUnit(st.buf[:n])
		if err != nil {
			continue
		}
		st.peer = addr
		st.lastBatchID = unit.BatchID
		st.stats.Duplicates++
		r.sendAck(log, st)
	}
}
