// Package machine implements variational wavefunctions for the sampler package.
package machine

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RBMSpin is a restricted Boltzmann machine wavefunction for spin configurations,
//
//	log(psi(x)) = sum_i a_i x_i + sum_j log(cosh(b_j + sum_i W_ji x_i)).
//
// Parameters are ordered as a, b, and then W in row major order.
// An RBMSpin is not safe for concurrent use.
type RBMSpin struct {
	// a is the visible bias, of shape {numVisible}.
	a *tensor.Dense
	// b is the hidden bias, of shape {numHidden}.
	b *tensor.Dense
	// w is the weight matrix, of shape {numHidden, numVisible}.
	w *tensor.Dense

	bufs [2]*tensor.Dense
}

// NewRBMSpin returns a machine whose parameters are drawn from a complex normal distribution of standard deviation sigma.
func NewRBMSpin(numVisible, numHidden int, sigma float64, seed uint64) *RBMSpin {
	if numVisible <= 0 || numHidden <= 0 {
		panic(fmt.Sprintf("%d %d", numVisible, numHidden))
	}
	m := &RBMSpin{
		a: tensor.Zeros(numVisible),
		b: tensor.Zeros(numHidden),
		w: tensor.Zeros(numHidden, numVisible),
	}
	for i := range m.bufs {
		m.bufs[i] = tensor.Zeros(1)
	}

	normal := distuv.Normal{Mu: 0, Sigma: sigma / math.Sqrt2, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	for _, idx := range m.indices() {
		idx.t.SetAt(idx.ijk, complex(float32(normal.Rand()), float32(normal.Rand())))
	}
	return m
}

func (m *RBMSpin) NumVisible() int { return m.a.Shape()[0] }
func (m *RBMSpin) NumHidden() int  { return m.b.Shape()[0] }

func (m *RBMSpin) NumParams() int {
	nv, nh := m.NumVisible(), m.NumHidden()
	return nv + nh + nh*nv
}

// Params returns a copy of the parameters.
func (m *RBMSpin) Params() []complex128 {
	p := make([]complex128, 0, m.NumParams())
	for _, idx := range m.indices() {
		p = append(p, complex128(idx.t.At(idx.ijk...)))
	}
	return p
}

// SetParams sets the parameters to p.
func (m *RBMSpin) SetParams(p []complex128) error {
	if len(p) != m.NumParams() {
		return errors.Errorf("%d %d", len(p), m.NumParams())
	}
	for k, idx := range m.indices() {
		idx.t.SetAt(idx.ijk, complex64(p[k]))
	}
	return nil
}

type paramIndex struct {
	t   *tensor.Dense
	ijk []int
}

// indices returns the location of every parameter, in parameter order.
func (m *RBMSpin) indices() []paramIndex {
	nv, nh := m.NumVisible(), m.NumHidden()
	idx := make([]paramIndex, 0, m.NumParams())
	for k := range nv {
		idx = append(idx, paramIndex{t: m.a, ijk: []int{k}})
	}
	for j := range nh {
		idx = append(idx, paramIndex{t: m.b, ijk: []int{j}})
	}
	for j := range nh {
		for k := range nv {
			idx = append(idx, paramIndex{t: m.w, ijk: []int{j, k}})
		}
	}
	return idx
}

// LogVal writes the log amplitude of each row of x into dst.
func (m *RBMSpin) LogVal(dst []complex128, x *mat.Dense) []complex128 {
	r, _ := x.Dims()
	theta := m.theta(x)

	dst = dst[:0]
	nv, nh := m.NumVisible(), m.NumHidden()
	for i := range r {
		var lv complex128
		for k := range nv {
			lv += complex128(m.a.At(k)) * complex(x.At(i, k), 0)
		}
		for j := range nh {
			lv += lncosh(complex128(m.b.At(j)) + complex128(theta.At(j, i)))
		}
		dst = append(dst, lv)
	}
	return dst
}

// DerLog returns the derivatives of the log amplitude of each row of x.
func (m *RBMSpin) DerLog(x *mat.Dense) *mat.CDense {
	r, _ := x.Dims()
	theta := m.theta(x)

	nv, nh := m.NumVisible(), m.NumHidden()
	d := mat.NewCDense(r, m.NumParams(), nil)
	for i := range r {
		for k := range nv {
			d.Set(i, k, complex(x.At(i, k), 0))
		}
		for j := range nh {
			t := cmplx.Tanh(complex128(m.b.At(j)) + complex128(theta.At(j, i)))
			d.Set(i, nv+j, t)
			for k := range nv {
				d.Set(i, nv+nh+j*nv+k, t*complex(x.At(i, k), 0))
			}
		}
	}
	return d
}

// theta returns W x^T, of shape {numHidden, rows of x}.
func (m *RBMSpin) theta(x *mat.Dense) *tensor.Dense {
	r, c := x.Dims()
	if c != m.NumVisible() {
		panic(fmt.Sprintf("%d %d", c, m.NumVisible()))
	}

	xt := m.bufs[0].Reset(r, c)
	for i := range r {
		for k, v := range x.RawRowView(i) {
			xt.SetAt([]int{i, k}, complex(float32(v), 0))
		}
	}
	return tensor.Contract(m.bufs[1], m.w, xt, [][2]int{{1, 1}})
}

// lncosh returns log(cosh(z)) without overflowing for large |Re(z)|.
func lncosh(z complex128) complex128 {
	if real(z) < 0 {
		z = -z
	}
	return z + cmplx.Log(1+cmplx.Exp(-2*z)) - math.Ln2
}
