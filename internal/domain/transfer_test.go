package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseCadence(t *testing.T) {
	tests := []struct {
		in   string
		want Cadence
		ok   bool
	}{
		{in: "fixed", want: CadenceFixed, ok: true},
		{in: "stop", want: CadenceFixed, ok: true},
		{in: "Varying", want: CadenceVarying, ok: true},
		{in: "burst", ok: false},
	}
	for _, tt := range tests {
		got, err := ParseCadence(tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseCadence(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("ParseCadence(%q): expected ErrInvalidConfiguration, got %v", tt.in, err)
		}
	}
}

func TestParseAckPolicy(t *testing.T) {
	if p, err := ParseAckPolicy("every-unit"); err != nil || p != AckEveryUnit {
		t.Errorf("every-unit: got %v, %v", p, err)
	}
	if p, err := ParseAckPolicy(""); err != nil || p != AckCadence {
		t.Errorf("empty: got %v, %v", p, err)
	}
	if _, err := ParseAckPolicy("never"); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("never: expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestRetriesExhaustedError(t *testing.T) {
	var err error = fmt.Errorf("send: %w", &RetriesExhaustedError{BatchID: 7, Retries: 50})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatal("expected errors.Is to match ErrRetriesExhausted")
	}
	var re *RetriesExhaustedError
	if !errors.As(err, &re) || re.BatchID != 7 {
		t.Fatalf("expected batch 7, got %+v", re)
	}
}

func TestBatchStateString(t *testing.T) {
	for state, want := range map[BatchState]string{
		Sending:       "Sending",
		AwaitingAck:   "AwaitingAck",
		Confirmed:     "Confirmed",
		Failed:        "Failed",
		BatchState(9): "undefined",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}

func TestThroughputMbps(t *testing.T) {
	start := time.Now()
	stats := TransferStats{StartedAt: start, FinishedAt: start.Add(time.Second)}

	if got := stats.ThroughputMbps(1_000_000); got != 8 {
		t.Errorf("ThroughputMbps = %v, want 8", got)
	}
	if got := (&TransferStats{}).ThroughputMbps(100); got != 0 {
		t.Errorf("unstarted ThroughputMbps = %v, want 0", got)
	}
}
