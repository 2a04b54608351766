package network

import (
	"NSSaDS/batchxfer/pkg/config"
	"net"
	"testing"
	"time"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// drain reads datagrams until wait passes without one arriving.
func drain(t *testing.T, conn *net.UDPConn, wait time.Duration) []string {
	t.Helper()
	var got []string
	buf := make([]byte, 64)
	for {
		conn.SetReadDeadline(time.Now().Add(wait))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return got
		}
		got = append(got, string(buf[:n]))
	}
}

func TestImpairedConn(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Impairment
		want      []string
		wantStats ImpairmentStats
	}{
		{
			name:      "passthrough",
			cfg:       config.Impairment{},
			want:      []string{"a", "b"},
			wantStats: ImpairmentStats{Written: 2},
		},
		{
			name:      "total loss",
			cfg:       config.Impairment{LossRate: 1},
			want:      nil,
			wantStats: ImpairmentStats{Dropped: 2},
		},
		{
			name:      "always duplicate",
			cfg:       config.Impairment{DuplicateRate: 1},
			want:      []string{"a", "a", "b", "b"},
			wantStats: ImpairmentStats{Written: 4, Duplicated: 2},
		},
		{
			name:      "always reorder",
			cfg:       config.Impairment{ReorderRate: 1, Seed: 1},
			want:      []string{"b", "a"},
			wantStats: ImpairmentStats{Written: 2, Reordered: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dst := listenLoopback(t), listenLoopback(t)
			conn := NewImpairedConn(src, tt.cfg)

			for _, msg := range []string{"a", "b"} {
				n, err := conn.WriteTo([]byte(msg), dst.LocalAddr())
				if err != nil || n != 1 {
					t.Fatalf("WriteTo(%q) = %d, %v", msg, n, err)
				}
			}

			got := drain(t, dst, 100*time.Millisecond)
			if len(got) != len(tt.want) {
				t.Fatalf("received %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("received %q, want %q", got, tt.want)
				}
			}
			if stats := conn.Stats(); stats != tt.wantStats {
				t.Errorf("stats = %+v, want %+v", stats, tt.wantStats)
			}
		})
	}
}

func TestImpairedConnCloseFlushesHeld(t *testing.T) {
	src, dst := listenLoopback(t), listenLoopback(t)
	conn := NewImpairedConn(src, config.Impairment{ReorderRate: 1})

	conn.WriteTo([]byte("held"), dst.LocalAddr())
	if got := drain(t, dst, 50*time.Millisecond); len(got) != 0 {
		t.Fatalf("held datagram leaked early: %q", got)
	}

	conn.Close()
	if got := drain(t, dst, 100*time.Millisecond); len(got) != 1 || got[0] != "held" {
		t.Fatalf("after close got %q, want [held]", got)
	}
}

func TestImpairedConnDropHook(t *testing.T) {
	src, dst := listenLoopback(t), listenLoopback(t)
	conn := NewImpairedConn(src, config.Impairment{})
	conn.DropHook = func(p []byte, addr net.Addr) bool {
		return string(p) == "drop-me"
	}

	conn.WriteTo([]byte("keep"), dst.LocalAddr())
	conn.WriteTo([]byte("drop-me"), dst.LocalAddr())

	got := drain(t, dst, 100*time.Millisecond)
	if len(got) != 1 || got[0] != "keep" {
		t.Fatalf("got %q, want [keep]", got)
	}
	if conn.Stats().Dropped != 1 {
		t.Errorf("dropped = %d, want 1", conn.Stats().Dropped)
	}
}
