package usecase

import (
	"NSSaDS/batchxfer/internal/domain"
	"NSSaDS/batchxfer/pkg/config"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SenderOptions struct {
	UnitSize   int
	Cadence    domain.Cadence
	AckTimeout time.Duration
	MaxRetries int
}

func (o SenderOptions) validate() error {
	if err := config.ValidateUnitSize(o.UnitSize); err != nil {
		return err
	}
	if o.Cadence != domain.CadenceFixed && o.Cadence != domain.CadenceVarying {
		return fmt.Errorf("%w: unknown cadence %d", domain.ErrInvalidConfiguration, o.Cadence)
	}
	if o.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout must be positive", domain.ErrInvalidConfiguration)
	}
	if o.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be positive", domain.ErrInvalidConfiguration)
	}
	return nil
}

// Sender pushes a payload to a single peer in acknowledged batches.
// A Sender runs one transfer at a time.
type Sender struct {
	conn net.PacketConn
	peer net.Addr
	opts SenderOptions
	log  *logrus.Entry
}

type senderState struct {
	payload  []byte
	unitSize int
	total    uint32

	seq     uint32
	batchID uint32
	retries int
	cycle   *domain.Cycle

	stats *domain.TransferStats
	txBuf []byte
	rxBuf []byte
}

func NewSender(conn net.PacketConn, peer net.Addr, opts SenderOptions, log *logrus.Entry) *Sender {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sender{
		conn: conn,
		peer: peer,
		opts: opts,
		log:  log.WithField("component", "sender"),
	}
}

// Send transfers payload and returns once the final batch is confirmed.
// The returned stats are never nil and hold partial counters on failure.
func (s *Sender) Send(ctx context.Context, payload []byte) (*domain.TransferStats, error) {
	stats := &domain.TransferStats{
		ID:         uuid.NewString(),
		TotalBytes: int64(len(payload)),
	}
	if err := s.opts.validate(); err != nil {
		return stats, err
	}
	if int64(len(payload)) > int64(math.MaxUint32)*int64(s.opts.UnitSize) {
		return stats, fmt.Errorf("%w: payload of %d bytes needs more than 2^32 units", domain.ErrInvalidConfiguration, len(payload))
	}

	st := &senderState{
		payload:  payload,
		unitSize: s.opts.UnitSize,
		total:    domain.TotalUnits(int64(len(payload)), s.opts.UnitSize),
		cycle:    domain.NewCycle(s.opts.Cadence),
		stats:    stats,
		txBuf:    make([]byte, 0, domain.DataHeaderSize+s.opts.UnitSize),
		rxBuf:    make([]byte, domain.AckSize+1),
	}
	stats.Units = st.total

	log := s.log.WithFields(logrus.Fields{
		"transfer": stats.ID,
		"peer":     s.peer.String(),
	})
	log.WithFields(logrus.Fields{
		"bytes":     len(payload),
		"units":     st.total,
		"unit_size": s.opts.UnitSize,
		"cadence":   s.opts.Cadence.String(),
	}).Info("Starting transfer")

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	stats.Start()
	for st.seq < st.total {
		if err := ctx.Err(); err != nil {
			stats.Finish()
			return stats, err
		}

		target := st.seq + uint32(st.cycle.Current())
		if target > st.total || target < st.seq {
			target = st.total
		}
		st.batchID++
		st.retries = 0
		stats.Batches++

		if err := s.runBatch(ctx, log, st, target); err != nil {
			stats.Finish()
			log.WithError(err).WithFields(logrus.Fields{
				"batch": st.batchID,
				"seq":   st.seq,
			}).Error("Transfer failed")
			return stats, err
		}

		log.WithFields(logrus.Fields{
			"batch": st.batchID,
			"first": st.seq,
			"next":  target,
		}).Trace("Batch confirmed")
		st.seq = target
		st.cycle.Advance()
	}
	stats.Finish()

	log.WithFields(logrus.Fields{
		"bytes_sent": stats.BytesSent,
		"batches":    stats.Batches,
		"timeouts":   stats.Timeouts,
		"elapsed":    stats.Elapsed(),
	}).Info("Transfer complete")
	return stats, nil
}

// runBatch drives one batch through Sending -> AwaitingAck until it is
// Confirmed or its retry budget is spent.
func (s *Sender) runBatch(ctx context.Context, log *logrus.Entry, st *senderState, target uint32) error {
	state := domain.Sending
	for {
		switch state {
		case domain.Sending:
			if err := s.transmit(st, target); err != nil {
				return err
			}
			state = domain.AwaitingAck

		case domain.AwaitingAck:
			err := s.awaitAck(ctx, log, st, target)
			switch {
			case err == nil:
				state = domain.Confirmed
			case errors.Is(err, domain.ErrAckTimeout), errors.Is(err, domain.ErrPartialAck):
				if errors.Is(err, domain.ErrAckTimeout) {
					st.stats.Timeouts++
				} else {
					st.stats.PartialAcks++
				}
				st.retries++
				log.WithFields(logrus.Fields{
					"batch":   st.batchID,
					"retries": st.retries,
					"reason":  err,
				}).Debug("Resending batch")
				if st.retries >= s.opts.MaxRetries {
					state = domain.Failed
				} else {
					st.stats.Retransmissions++
					state = domain.Sending
				}
			default:
				return err
			}

		case domain.Confirmed:
			return nil

		case domain.Failed:
			return &domain.RetriesExhaustedError{BatchID: st.batchID, Retries: st.retries}
		}
	}
}

// transmit sends every unit in [st.seq, target) under the current batch id.
func (s *Sender) transmit(st *senderState, target uint32) error {
	size := int64(len(st.payload))
	for seq := st.seq; seq < target; seq++ {
		start, end := domain.UnitBounds(seq, size, st.unitSize)
		unit := domain.NewDataUnit(seq, st.batchID, st.payload[start:end], seq == st.total-1)

		buf, err := unit.AppendTo(st.txBuf)
		if err != nil {
			return err
		}
		st.txBuf = buf

		if _, err := s.conn.WriteTo(buf, s.peer); err != nil {
			return fmt.Errorf("failed to send unit %d: %w", seq, err)
		}
		st.stats.BytesSent += end - start
	}
	return nil
}

// awaitAck waits one timeout window for the acknowledgment of the current
// batch. Malformed and stale acknowledgments are skipped without extending
// the window.
func (s *Sender) awaitAck(ctx context.Context, log *logrus.Entry, st *senderState, target uint32) error {
	if err := s.setDeadline(ctx, s.opts.AckTimeout); err != nil {
		return err
	}
	ack, err := s.readAck(ctx, log, st)
	if err != nil {
		return err
	}
	if ack.NextSeq >= target {
		return nil
	}

	// A resent batch makes the receiver re-ack each duplicate ahead of the
	// unit that completes it. Drain what is already queued before resending.
	best := ack.NextSeq
	if err := s.setDeadline(ctx, s.drainWindow()); err != nil {
		return err
	}
	for {
		ack, err := s.readAck(ctx, log, st)
		if errors.Is(err, domain.ErrAckTimeout) {
			break
		}
		if err != nil {
			return err
		}
		if ack.NextSeq >= target {
			return nil
		}
		best = max(best, ack.NextSeq)
	}
	return fmt.Errorf("%w: next seq %d, want %d", domain.ErrPartialAck, best, target)
}

func (s *Sender) drainWindow() time.Duration {
	return s.opts.AckTimeout / 10
}

// setDeadline arms the read deadline. It fails if ctx is already done, since
// the cancel hook's deadline may just have been overwritten.
func (s *Sender) setDeadline(ctx context.Context, d time.Duration) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return fmt.Errorf("failed to set ack deadline: %w", err)
	}
	return ctx.Err()
}

// readAck returns the next acknowledgment for the current batch, or
// ErrAckTimeout once the deadline passes.
func (s *Sender) readAck(ctx context.Context, log *logrus.Entry, st *senderState) (*domain.Ack, error) {
	for {
		n, _, err := s.conn.ReadFrom(st.rxBuf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if isTimeout(err) {
				return nil, domain.ErrAckTimeout
			}
			return nil, fmt.Errorf("failed to receive ack: %w", err)
		}

		ack, err := domain.DeserializeAck(st.rxBuf[:n])
		if err != nil {
			st.stats.Malformed++
			continue
		}
		if ack.BatchID != st.batchID {
			st.stats.StaleAcks++
			log.WithError(fmt.Errorf("%w: batch %d, want %d", domain.ErrStaleAck, ack.BatchID, st.batchID)).
				Debug("Skipping acknowledgment")
			continue
		}
		if ack.NextSeq > st.stats.LastNextSeq {
			st.stats.LastNextSeq = ack.NextSeq
		}
		return ack, nil
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
