// Package vmc finds ground states of the transverse field Ising model by variational Monte Carlo.
//
// The Hamiltonian on an open boundary lattice is H = -sum_<ij> Z_i Z_j - h sum_i X_i.
// Configurations are spins in the Z basis, with local states {-1, 1}.
package vmc

import (
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
	dense "gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fumin/vmc/mat"
)

// TransverseFieldIsing is the transverse field Ising Hamiltonian on an N[0] x N[1] lattice with field strength H.
type TransverseFieldIsing struct {
	N [2]int
	H float64
}

// NumSpins returns the number of sites.
func (op TransverseFieldIsing) NumSpins() int { return op.N[0] * op.N[1] }

// Conn returns the configurations connected to x by the Hamiltonian.
// The diagonal element comes first, followed by the single spin flips.
func (op TransverseFieldIsing) Conn(x []float64) func(yield func([]float64, complex128) bool) {
	if len(x) != op.NumSpins() {
		panic(fmt.Sprintf("%d %v", len(x), op.N))
	}
	return func(yield func([]float64, complex128) bool) {
		if diag := op.coupling(x); diag != 0 {
			if !yield(x, complex(diag, 0)) {
				return
			}
		}

		if op.H == 0 {
			return
		}
		flipped := slices.Clone(x)
		for i, s := range x {
			flipped[i] = -s
			if !yield(flipped, complex(-op.H, 0)) {
				return
			}
			flipped[i] = s
		}
	}
}

// coupling returns the diagonal element -sum_<ij> s_i s_j of a configuration.
func (op TransverseFieldIsing) coupling(x []float64) float64 {
	n := op.N
	var diag float64
	for y := range n[0] {
		for x0 := range n[1] {
			spin := x[y*n[1]+x0]
			if up := y - 1; up >= 0 {
				diag -= spin * x[up*n[1]+x0]
			}
			if left := x0 - 1; left >= 0 {
				diag -= spin * x[y*n[1]+left]
			}
		}
	}
	return diag
}

// Hamiltonian returns the matrix of op in the basis enumerated by basis.
func Hamiltonian(op TransverseFieldIsing) *mat.COO {
	numSpins := op.NumSpins()
	h := mat.COOZeros(1<<numSpins, 1<<numSpins)
	for i, state := range basis(numSpins) {
		for connected, mel := range op.Conn(state) {
			h.AddAt(i, basisIndex(connected), mel)
		}
	}
	h.Compact()
	return h
}

// Statistics are observables of a ground state.
type Statistics struct {
	EigenValue     []float64
	Magnetization  float64
	BinderCumulant float64
}

// ExactStatistics returns the observables of the exact ground state vvs[0] of an n[0] x n[1] lattice.
func ExactStatistics(n [2]int, vvs []mat.ValVec) (Statistics, error) {
	var stats Statistics
	for _, vv := range vvs {
		stats.EigenValue = append(stats.EigenValue, real(vv.Val))
	}
	ground := vvs[0]
	numSpins := n[0] * n[1]
	if len(ground.Vec) != 1<<numSpins {
		return Statistics{}, errors.Errorf("%d %d", len(ground.Vec), 1<<numSpins)
	}

	var totalProb, m, m2, m4 float64
	for i, state := range basis(numSpins) {
		amplitude := ground.Vec[i]
		probability := real(amplitude)*real(amplitude) + imag(amplitude)*imag(amplitude)
		// The magnetization of the basis where the majority of spins are up.
		basisM := math.Abs(magnetization(state))

		totalProb += probability
		m += probability * basisM
		m2 += probability * basisM * basisM
		m4 += probability * math.Pow(basisM, 4)
	}
	if math.Abs(totalProb-1) > 1e-3 {
		return Statistics{}, errors.Errorf("%f", totalProb)
	}

	stats.Magnetization = m / float64(numSpins)
	stats.BinderCumulant = 1 - m4/(m2*m2)/3
	return stats, nil
}

// SampleStatistics returns the observables estimated from Monte Carlo samples, one configuration per row.
func SampleStatistics(samples *dense.Dense) Statistics {
	r, c := samples.Dims()
	absM := make([]float64, r)
	m2 := make([]float64, r)
	m4 := make([]float64, r)
	for i := range r {
		v := math.Abs(magnetization(samples.RawRowView(i)))
		absM[i] = v
		m2[i] = v * v
		m4[i] = m2[i] * m2[i]
	}

	var stats Statistics
	stats.Magnetization = stat.Mean(absM, nil) / float64(c)
	mean2 := stat.Mean(m2, nil)
	stats.BinderCumulant = 1 - stat.Mean(m4, nil)/(mean2*mean2)/3
	return stats
}

func magnetization(state []float64) float64 {
	var m float64
	for _, s := range state {
		m += s
	}
	return m
}

// basis enumerates the 2^n spin configurations, in the order of the Kronecker product basis.
// The yielded slice is reused between iterations.
func basis(n int) func(yield func(int, []float64) bool) {
	state := make([]float64, n)
	return func(yield func(int, []float64) bool) {
		numStates := 1 << n
		for i := range numStates {
			indexState(state, i)
			if !yield(i, state) {
				return
			}
		}
	}
}

// indexState writes the configuration of basis index i into state.
// The first site is the most significant bit, and a zero bit is spin up, the +1 eigenstate of Z.
func indexState(state []float64, i int) {
	n := len(state)
	for j := range n {
		switch (i >> (n - 1 - j)) & 1 {
		case 0:
			state[j] = 1
		default:
			state[j] = -1
		}
	}
}

func basisIndex(state []float64) int {
	idx := 0
	for _, s := range state {
		idx <<= 1
		if s < 0 {
			idx |= 1
		}
	}
	return idx
}
