package sampler

import (
	"gonum.org/v1/gonum/mat"
)

// funcMachine evaluates logPsi on every row, and uses the configuration itself as the log derivative.
type funcMachine struct {
	numVisible int
	logPsi     func(x []float64) complex128
}

func (m funcMachine) NumVisible() int { return m.numVisible }
func (m funcMachine) NumParams() int  { return m.numVisible }

func (m funcMachine) LogVal(dst []complex128, x *mat.Dense) []complex128 {
	r, _ := x.Dims()
	dst = dst[:0]
	for i := range r {
		dst = append(dst, m.logPsi(x.RawRowView(i)))
	}
	return dst
}

func (m funcMachine) DerLog(x *mat.Dense) *mat.CDense {
	r, c := x.Dims()
	d := mat.NewCDense(r, c, nil)
	for i := range r {
		for j := range c {
			d.Set(i, j, complex(x.At(i, j), 0))
		}
	}
	return d
}

func constMachine(numVisible int) funcMachine {
	return funcMachine{numVisible: numVisible, logPsi: func([]float64) complex128 { return 0 }}
}

// shortMachine returns one value fewer than requested after its first calls ok calls.
type shortMachine struct {
	funcMachine
	ok    int
	calls *int
}

func (m shortMachine) LogVal(dst []complex128, x *mat.Dense) []complex128 {
	*m.calls++
	y := m.funcMachine.LogVal(dst, x)
	if *m.calls > m.ok {
		return y[:len(y)-1]
	}
	return y
}

// configIndex returns the index of a spin configuration of local states {-1, 1}, reading x as binary digits.
func configIndex(x []float64) int {
	idx := 0
	for _, v := range x {
		idx <<= 1
		if v > 0 {
			idx |= 1
		}
	}
	return idx
}
