package searcher

import "math"

type puct struct {
	c     float64
	sqrtN float64
}

func newPUCT(c float64, N float64) puct {
	if N < 0 {
		panic("N cannot be negative")
	}
	return puct{c: c, sqrtN: math.Sqrt(N)}
}

// bonus is the exploration term c * P * sqrt(N) / (1 + n)
func (p puct) bonus(prior float64, n float64) float64 {
	return p.c * prior * p.sqrtN / (1 + n)
}

func (p puct) evaluate(q float64, prior float64, n float64) float64 {
	// PUCT = Q + U
	return q + p.bonus(prior, n)
}
