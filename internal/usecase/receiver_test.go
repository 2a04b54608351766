package usecase

import (
	"NSSaDS/batchxfer/internal/domain"
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func encodeUnit(t *testing.T, seq, batchID uint32, payload string, fin bool) []byte {
	t.Helper()
	data, err := domain.NewDataUnit(seq, batchID, []byte(payload), fin).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// readAck returns the next acknowledgment within wait, or nil.
func readAck(t *testing.T, conn *net.UDPConn, wait time.Duration) *domain.Ack {
	t.Helper()
	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(wait))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		t.Fatalf("read ack: %v", err)
	}
	ack, err := domain.DeserializeAck(buf[:n])
	if err != nil {
		t.Fatalf("bad ack: %v", err)
	}
	return ack
}

type scriptStep struct {
	name     string
	datagram []byte
	wantAck  *domain.Ack
}

func runScript(t *testing.T, opts ReceiverOptions, steps func(t *testing.T) []scriptStep) (receiveResult, []byte) {
	t.Helper()
	receiverConn, peer := listen(t), listen(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sink bytes.Buffer
	done := make(chan receiveResult, 1)
	go func() {
		stats, err := NewReceiver(receiverConn, opts, quietLogger()).Receive(ctx, &sink)
		done <- receiveResult{stats: stats, err: err}
	}()

	for _, step := range steps(t) {
		if _, err := peer.WriteTo(step.datagram, receiverConn.LocalAddr()); err != nil {
			t.Fatalf("%s: write: %v", step.name, err)
		}
		wait := time.Second
		if step.wantAck == nil {
			wait = 100 * time.Millisecond
		}
		got := readAck(t, peer, wait)
		switch {
		case step.wantAck == nil && got != nil:
			t.Fatalf("%s: unexpected %v", step.name, got)
		case step.wantAck != nil && got == nil:
			t.Fatalf("%s: no ack, want %v", step.name, step.wantAck)
		case step.wantAck != nil && *got != *step.wantAck:
			t.Fatalf("%s: got %v, want %v", step.name, got, step.wantAck)
		}
	}

	select {
	case res := <-done:
		return res, sink.Bytes()
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not finish")
		return receiveResult{}, nil
	}
}

func TestReceiverAckCadence(t *testing.T) {
	res, got := runScript(t, ReceiverOptions{Cadence: domain.CadenceVarying}, func(t *testing.T) []scriptStep {
		return []scriptStep{
			{name: "first unit", datagram: encodeUnit(t, 0, 1, "a", false), wantAck: domain.NewAck(1, 1)},
			{name: "second unit waits for cycle", datagram: encodeUnit(t, 1, 2, "b", false)},
			{name: "future unit dropped", datagram: encodeUnit(t, 3, 2, "d", false)},
			{name: "duplicate re-acks cursor", datagram: encodeUnit(t, 0, 2, "a", false), wantAck: domain.NewAck(2, 2)},
			{name: "undersized datagram", datagram: []byte{1, 2, 3}},
			{name: "third unit completes cycle", datagram: encodeUnit(t, 2, 2, "c", false), wantAck: domain.NewAck(2, 3)},
			{name: "fin always acked", datagram: encodeUnit(t, 3, 3, "d", true), wantAck: domain.NewAck(3, 4)},
		}
	})

	if res.err != nil {
		t.Fatalf("Receive failed: %v", res.err)
	}
	if string(got) != "abcd" {
		t.Errorf("sink = %q, want %q", got, "abcd")
	}
	st := res.stats
	if st.UnitsAccepted != 4 || st.Duplicates != 1 || st.OutOfOrder != 1 || st.Malformed != 1 || st.AcksSent != 4 {
		t.Errorf("stats = %+v", st)
	}
	if st.BytesReceived != 4 || st.LastNextSeq != 4 {
		t.Errorf("bytes/last next seq = %d/%d", st.BytesReceived, st.LastNextSeq)
	}
}

func TestReceiverAckEveryUnit(t *testing.T) {
	res, got := runScript(t, ReceiverOptions{Cadence: domain.CadenceVarying, AckPolicy: domain.AckEveryUnit}, func(t *testing.T) []scriptStep {
		return []scriptStep{
			{name: "unit 0", datagram: encodeUnit(t, 0, 1, "x", false), wantAck: domain.NewAck(1, 1)},
			{name: "unit 1", datagram: encodeUnit(t, 1, 2, "y", false), wantAck: domain.NewAck(2, 2)},
			{name: "unit 2", datagram: encodeUnit(t, 2, 2, "z", true), wantAck: domain.NewAck(2, 3)},
		}
	})
	if res.err != nil {
		t.Fatalf("Receive failed: %v", res.err)
	}
	if string(got) != "xyz" {
		t.Errorf("sink = %q", got)
	}
}

func TestReceiverFixedCadenceAcksEachUnit(t *testing.T) {
	res, _ := runScript(t, ReceiverOptions{Cadence: domain.CadenceFixed}, func(t *testing.T) []scriptStep {
		return []scriptStep{
			{name: "unit 0", datagram: encodeUnit(t, 0, 1, "x", false), wantAck: domain.NewAck(1, 1)},
			{name: "unit 1", datagram: encodeUnit(t, 1, 2, "y", false), wantAck: domain.NewAck(2, 2)},
			{name: "unit 2", datagram: encodeUnit(t, 2, 3, "z", false), wantAck: domain.NewAck(3, 3)},
			{name: "empty fin", datagram: encodeUnit(t, 3, 4, "", true), wantAck: domain.NewAck(4, 4)},
		}
	})
	if res.err != nil {
		t.Fatalf("Receive failed: %v", res.err)
	}
}

func TestReceiverLingerAnswersRetransmissions(t *testing.T) {
	res, got := runScript(t, ReceiverOptions{Cadence: domain.CadenceVarying, Linger: 500 * time.Millisecond}, func(t *testing.T) []scriptStep {
		return []scriptStep{
			{name: "only unit", datagram: encodeUnit(t, 0, 1, "solo", true), wantAck: domain.NewAck(1, 1)},
			{name: "retransmission after completion", datagram: encodeUnit(t, 0, 1, "solo", true), wantAck: domain.NewAck(1, 1)},
		}
	})
	if res.err != nil {
		t.Fatalf("Receive failed: %v", res.err)
	}
	if string(got) != "solo" {
		t.Errorf("sink = %q", got)
	}
	if res.stats.AcksSent != 2 || res.stats.UnitsAccepted != 1 {
		t.Errorf("acks/units = %d/%d, want 2/1", res.stats.AcksSent, res.stats.UnitsAccepted)
	}
}

func TestReceiverExpectedSeqNeverDecreases(t *testing.T) {
	res, _ := runScript(t, ReceiverOptions{Cadence: domain.CadenceFixed}, func(t *testing.T) []scriptStep {
		return []scriptStep{
			{name: "unit 0", datagram: encodeUnit(t, 0, 1, "a", false), wantAck: domain.NewAck(1, 1)},
			{name: "unit 1", datagram: encodeUnit(t, 1, 2, "b", false), wantAck: domain.NewAck(2, 2)},
			{name: "stale unit 0", datagram: encodeUnit(t, 0, 1, "a", false), wantAck: domain.NewAck(1, 2)},
			{name: "stale unit 1", datagram: encodeUnit(t, 1, 2, "b", false), wantAck: domain.NewAck(2, 2)},
			{name: "fin", datagram: encodeUnit(t, 2, 3, "c", true), wantAck: domain.NewAck(3, 3)},
		}
	})
	if res.err != nil {
		t.Fatalf("Receive failed: %v", res.err)
	}
}

type failingSink struct{}

func (failingSink) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestReceiverSinkFailureIsFatal(t *testing.T) {
	receiverConn, peer := listen(t), listen(t)

	done := make(chan error, 1)
	go func() {
		_, err := NewReceiver(receiverConn, ReceiverOptions{}, quietLogger()).Receive(context.Background(), failingSink{})
		done <- err
	}()

	peer.WriteTo(encodeUnit(t, 0, 1, "a", false), receiverConn.LocalAddr())

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected sink error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not fail")
	}
}

func TestReceiverCancelled(t *testing.T) {
	receiverConn := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	stats, err := NewReceiver(receiverConn, ReceiverOptions{}, quietLogger()).Receive(ctx, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats == nil || stats.UnitsAccepted != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
