package network

import (
	"NSSaDS/batchxfer/pkg/config"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"time"
)

type heldDatagram struct {
	data []byte
	addr net.Addr
}

// ImpairmentStats counts what an ImpairedConn did to outgoing datagrams.
type ImpairmentStats struct {
	Written    int
	Dropped    int
	Duplicated int
	Reordered  int
}

// ImpairedConn simulates an unreliable network on the sending side of a
// PacketConn: datagrams may be dropped, sent twice, or held back and sent
// after the next one.
type ImpairedConn struct {
	net.PacketConn

	cfg   config.Impairment
	mu    sync.Mutex
	rng   *rand.Rand
	held  *heldDatagram
	stats ImpairmentStats

	// DropHook, when set, is consulted before the random rules. Returning
	// true drops the datagram.
	DropHook func(p []byte, addr net.Addr) bool
}

func NewImpairedConn(conn net.PacketConn, cfg config.Impairment) *ImpairedConn {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &ImpairedConn{
		PacketConn: conn,
		cfg:        cfg,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (c *ImpairedConn) roll(rate float64) bool {
	return rate > 0 && c.rng.Float64() < rate
}

func (c *ImpairedConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.DropHook != nil && c.DropHook(p, addr) {
		c.stats.Dropped++
		return len(p), nil
	}
	if c.roll(c.cfg.LossRate) {
		c.stats.Dropped++
		return len(p), nil
	}
	if c.held == nil && c.roll(c.cfg.ReorderRate) {
		c.held = &heldDatagram{data: slices.Clone(p), addr: addr}
		c.stats.Reordered++
		return len(p), nil
	}

	if err := c.write(p, addr); err != nil {
		return 0, err
	}
	if c.roll(c.cfg.DuplicateRate) {
		c.stats.Duplicated++
		if err := c.write(p, addr); err != nil {
			return 0, err
		}
	}
	if err := c.flushHeld(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *ImpairedConn) write(p []byte, addr net.Addr) error {
	if _, err := c.PacketConn.WriteTo(p, addr); err != nil {
		return err
	}
	c.stats.Written++
	return nil
}

// REQUIRE: mu held
func (c *ImpairedConn) flushHeld() error {
	if c.held == nil {
		return nil
	}
	held := c.held
	c.held = nil
	return c.write(held.data, held.addr)
}

func (c *ImpairedConn) Stats() ImpairmentStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close sends any held datagram before closing the socket.
func (c *ImpairedConn) Close() error {
	c.mu.Lock()
	_ = c.flushHeld()
	c.mu.Unlock()
	return c.PacketConn.Close()
}
