package gpio

import "sync/atomic"

// quadStep maps prev<<2|cur of the two-bit AB state to a count delta.
// Invalid double transitions count as zero.
var quadStep = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Quadrature decodes a rotary encoder from its A and B levels. The count is
// never reset.
type Quadrature struct {
	state uint32
	pos   atomic.Int64
}

func NewQuadrature(a, b bool) *Quadrature {
	q := &Quadrature{}
	q.state = abState(a, b)
	return q
}

// Update feeds the current levels. Callers serialize Update.
func (q *Quadrature) Update(a, b bool) {
	cur := abState(a, b)
	if d := quadStep[q.state<<2|cur]; d != 0 {
		q.pos.Add(int64(d))
	}
	q.state = cur
}

func (q *Quadrature) Position() int64 {
	return q.pos.Load()
}

func abState(a, b bool) uint32 {
	var s uint32
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}
