package domain

var varyingPattern = []int{1, 2, 3}

// Cycle walks a repeating size pattern. The position only moves on Advance.
type Cycle struct {
	pattern []int
	pos     int
}

func NewCycle(c Cadence) *Cycle {
	if c == CadenceVarying {
		return &Cycle{pattern: varyingPattern}
	}
	return &Cycle{pattern: []int{1}}
}

func (c *Cycle) Current() int {
	return c.pattern[c.pos]
}

func (c *Cycle) Advance() {
	c.pos = (c.pos + 1) % len(c.pattern)
}

// TotalUnits is the number of data units covering size bytes. An empty
// payload still occupies one unit so the fin flag has a carrier.
func TotalUnits(size int64, unitSize int) uint32 {
	if size <= 0 {
		return 1
	}
	return uint32((size + int64(unitSize) - 1) / int64(unitSize))
}

// UnitBounds returns the payload range of unit seq.
func UnitBounds(seq uint32, size int64, unitSize int) (start, end int64) {
	start = int64(seq) * int64(unitSize)
	end = start + int64(unitSize)
	if end > size {
		end = size
	}
	if start > end {
		start = end
	}
	return start, end
}
