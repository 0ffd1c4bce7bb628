package optimizer

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// solveLP minimises c·x subject to g·x <= h with gonum's simplex and returns
// x. Variables are free; their bounds are rows of g.
func solveLP(c []float64, g *mat.Dense, h []float64) ([]float64, error) {
	cStd, aStd, bStd := lp.Convert(c, g, h, nil, nil)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-9, nil)
	if err != nil {
		return nil, err
	}
	n := len(c)
	x := make([]float64, n)
	for i := range x {
		x[i] = sol[i] - sol[n+i]
	}
	return x, nil
}

// lpSolve points to the function used to solve the LP. It can be overridden in
// tests to simulate solver failures.
var lpSolve = solveLP

// buildLP writes the timing problem for fixed sequences in minutes. The
// columns are the starts x, one lateness L per train and, when stability is
// priced, one deviation d per start. Rows are the arcs, the lower and horizon
// bounds of x, L >= arrival overrun, L >= 0 and d >= |x - baseline|.
func (f *formulation) buildLP(seq sequences) ([]float64, *mat.Dense, []float64) {
	n, m := len(f.vars), len(f.trains)
	cols := n + m
	if f.stability > 0 {
		cols += n
	}
	arcs := f.arcs(seq)
	rows := len(arcs) + 2*n + 2*m
	if f.stability > 0 {
		rows += 2 * n
	}
	g := mat.NewDense(rows, cols, nil)
	h := make([]float64, rows)
	r := 0
	for _, a := range arcs {
		// x_from - x_to <= -lag
		g.Set(r, a.from, 1)
		g.Set(r, a.to, -1)
		h[r] = -float64(a.lag) / 60
		r++
	}
	for i, v := range f.vars {
		g.Set(r, i, -1)
		h[r] = -float64(v.lb) / 60
		r++
		g.Set(r, i, 1)
		h[r] = float64(f.horizon-v.dur) / 60
		r++
	}
	for k, t := range f.trains {
		last := t.vars[len(t.vars)-1]
		// x_last - L <= (arrival - dur) / 60
		g.Set(r, last, 1)
		g.Set(r, n+k, -1)
		h[r] = float64(t.arrival-f.vars[last].dur) / 60
		r++
		g.Set(r, n+k, -1)
		r++
	}
	if f.stability > 0 {
		for i, b := range f.base {
			d := n + m + i
			g.Set(r, i, 1)
			g.Set(r, d, -1)
			h[r] = float64(b) / 60
			r++
			g.Set(r, i, -1)
			g.Set(r, d, -1)
			h[r] = -float64(b) / 60
			r++
		}
	}
	c := make([]float64, cols)
	for i := 0; i < n; i++ {
		c[i] = epsilon * epsilon
	}
	for k, t := range f.trains {
		c[t.vars[0]] += t.weight
		c[n+k] = arrivalFactor * t.weight
	}
	if f.stability > 0 {
		for i := 0; i < n; i++ {
			c[n+m+i] = f.stability
		}
	}
	return c, g, h
}

// repair rounds the starts of an LP solution to whole seconds and restores
// feasibility by propagation from the rounded values. Columns past the starts
// are ignored.
func (f *formulation) repair(seq sequences, x []float64) ([]int64, bool) {
	if len(x) < len(f.vars) {
		return nil, false
	}
	lb := f.lowerBounds()
	for i := range f.vars {
		s := int64(math.Round(x[i] * 60))
		if s > lb[i] {
			lb[i] = s
		}
	}
	return f.propagate(seq, lb)
}
