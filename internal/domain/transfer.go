package domain

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMalformedDatagram    = errors.New("malformed datagram")
	ErrStaleAck             = errors.New("stale or foreign acknowledgment")
	ErrPartialAck           = errors.New("partial batch acknowledgment")
	ErrAckTimeout           = errors.New("acknowledgment timeout")
	ErrRetriesExhausted     = errors.New("retries exhausted")
)

// RetriesExhaustedError reports the batch whose retry budget ran out.
type RetriesExhaustedError struct {
	BatchID uint32
	Retries int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("batch %d: %v after %d retries", e.BatchID, ErrRetriesExhausted, e.Retries)
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

type Cadence int

const (
	CadenceFixed Cadence = iota
	CadenceVarying
)

func (c Cadence) String() string {
	switch c {
	case CadenceFixed:
		return "fixed"
	case CadenceVarying:
		return "varying"
	default:
		return "invalid"
	}
}

// ParseCadence accepts "fixed", "varying" and the legacy spelling "stop".
func ParseCadence(s string) (Cadence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "stop":
		return CadenceFixed, nil
	case "varying":
		return CadenceVarying, nil
	default:
		return 0, fmt.Errorf("%w: unknown cadence %q", ErrInvalidConfiguration, s)
	}
}

// AckPolicy selects when the receiver emits acknowledgments.
type AckPolicy int

const (
	// AckCadence counts accepted units against a persistent cycle.
	AckCadence AckPolicy = iota
	// AckEveryUnit acknowledges each accepted unit on its own.
	AckEveryUnit
)

func (p AckPolicy) String() string {
	switch p {
	case AckCadence:
		return "cadence"
	case AckEveryUnit:
		return "every-unit"
	default:
		return "invalid"
	}
}

func ParseAckPolicy(s string) (AckPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cadence", "":
		return AckCadence, nil
	case "every-unit", "every":
		return AckEveryUnit, nil
	default:
		return 0, fmt.Errorf("%w: unknown ack policy %q", ErrInvalidConfiguration, s)
	}
}

type BatchState int

const (
	Sending BatchState = iota
	AwaitingAck
	Confirmed
	Failed
)

func (s BatchState) String() string {
	switch s {
	case Sending:
		return "Sending"
	case AwaitingAck:
		return "AwaitingAck"
	case Confirmed:
		return "Confirmed"
	case Failed:
		return "Failed"
	default:
		return "undefined"
	}
}

// Sink receives accepted payloads in sequence order.
type Sink interface {
	io.Writer
}

// Flusher is implemented by sinks that buffer writes.
type Flusher interface {
	Flush() error
}

type TransferStats struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	TotalBytes int64
	BytesSent  int64
	Units      uint32
	Batches    uint32

	Retransmissions int
	Timeouts        int
	PartialAcks     int
	StaleAcks       int

	BytesReceived int64
	UnitsAccepted uint32
	Duplicates    int
	OutOfOrder    int
	Malformed     int
	AcksSent      int
	LastNextSeq   uint32
}

func (s *TransferStats) Start() {
	s.StartedAt = time.Now()
}

func (s *TransferStats) Finish() {
	s.FinishedAt = time.Now()
}

func (s *TransferStats) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ThroughputMbps returns bytes*8 over the elapsed time in megabits per second.
func (s *TransferStats) ThroughputMbps(bytes int64) float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) * 8 / elapsed / 1e6
}
