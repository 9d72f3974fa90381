package vmc

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"slices"
	"testing"

	dense "gonum.org/v1/gonum/mat"

	"github.com/fumin/vmc/machine"
	"github.com/fumin/vmc/mat"
	"github.com/fumin/vmc/sampler"
)

func TestHamiltonianMatrix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n           [2]int
		h           float64
		hamiltonian *mat.COO
	}{
		{
			n: [2]int{4, 1},
			h: 1,
			hamiltonian: mat.M([][]complex128{
				{-3, -1, -1, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0, 0, 0},
				{-1, -1, 0, -1, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0, 0},
				{-1, 0, 1, -1, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0},
				{0, -1, -1, -1, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0},
				{-1, 0, 0, 0, 1, -1, -1, 0, 0, 0, 0, 0, -1, 0, 0, 0},
				{0, -1, 0, 0, -1, 3, 0, -1, 0, 0, 0, 0, 0, -1, 0, 0},
				{0, 0, -1, 0, -1, 0, 1, -1, 0, 0, 0, 0, 0, 0, -1, 0},
				{0, 0, 0, -1, 0, -1, -1, -1, 0, 0, 0, 0, 0, 0, 0, -1},
				{-1, 0, 0, 0, 0, 0, 0, 0, -1, -1, -1, 0, -1, 0, 0, 0},
				{0, -1, 0, 0, 0, 0, 0, 0, -1, 1, 0, -1, 0, -1, 0, 0},
				{0, 0, -1, 0, 0, 0, 0, 0, -1, 0, 3, -1, 0, 0, -1, 0},
				{0, 0, 0, -1, 0, 0, 0, 0, 0, -1, -1, 1, 0, 0, 0, -1},
				{0, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, -1, -1, -1, 0},
				{0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, -1, 1, 0, -1},
				{0, 0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, -1, 0, -1, -1},
				{0, 0, 0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, -1, -1, -3},
			}),
		},
		{
			n: [2]int{2, 1},
			h: 0.5,
			hamiltonian: mat.M([][]complex128{
				{-1, -0.5, -0.5, 0},
				{-0.5, 1, 0, -0.5},
				{-0.5, 0, 1, -0.5},
				{0, -0.5, -0.5, -1},
			}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.n, test.h), func(t *testing.T) {
			t.Parallel()
			hamiltonian := mat.M([][]complex128{{0}})
			buf := mat.M([][]complex128{{0}})
			kronHamiltonian(hamiltonian, buf, test.n, complex(test.h, 0))
			if !hamiltonian.Equal(test.hamiltonian) {
				t.Fatalf("\n%v, expected \n\n%v", hamiltonian, test.hamiltonian)
			}

			h := Hamiltonian(TransverseFieldIsing{N: test.n, H: test.h})
			if !h.Equal(test.hamiltonian) {
				t.Fatalf("\n%v, expected \n\n%v", h, test.hamiltonian)
			}
		})
	}
}

func TestHamiltonian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n [2]int
		h float64
	}{
		{n: [2]int{8, 1}, h: 1},
		{n: [2]int{2, 2}, h: 1},
		{n: [2]int{2, 3}, h: 0.3},
		{n: [2]int{3, 1}, h: 0},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.n, test.h), func(t *testing.T) {
			t.Parallel()
			m := mat.M([][]complex128{{0}})
			buf := mat.M([][]complex128{{0}})
			kronHamiltonian(m, buf, test.n, complex(test.h, 0))

			h := Hamiltonian(TransverseFieldIsing{N: test.n, H: test.h})
			if !h.Equal(m) {
				t.Fatalf("\n%v, expected \n\n%v", h, m)
			}
		})
	}
}

func TestEigen(t *testing.T) {
	t.Parallel()
	vvs := Hamiltonian(TransverseFieldIsing{N: [2]int{8, 1}, H: 1}).Eigen()

	// Check eigenvalues.
	// Values are from https://juliaphysics.github.io/PhysicsTutorials.jl/tutorials/general/quantum_ising/quantum_ising.html
	vals := []float64{-9.837951447459426, -9.46887800960621, -8.7432994871710, -8.374226049317867, -8.054998024353266, -7.685924586500063, -7.427412901942416, -7.058339464089192, -6.960346064064927, -6.881915778576785}
	for i, v := range vvs[0:10] {
		if math.Abs(real(v.Val)-vals[i]) > 1e-6 {
			t.Fatalf("%d %v %f", i, v.Val, vals[i])
		}
	}

	// Check eigenvectors.
	var probSum float64
	for _, v := range vvs[0].Vec {
		probSum += real(v)*real(v) + imag(v)*imag(v)
	}
	if math.Abs(probSum-1) > 1e-6 {
		t.Fatalf("%f", probSum)
	}
	vec := []float64{0.11623105759942885, 0.030073150814502212, 0.0119388989548912, 0.01836268922781065, 0.010306563749646199, 0.0036432311839576883, 0.005695810419718821, 0.014593393364127294, 0.009913022568277332, 0.002835013679521494}
	for i, v := range vvs[0].Vec[:10] {
		prob := real(v)*real(v) + imag(v)*imag(v)
		if math.Abs(prob-vec[i]) > 1e-6 {
			t.Fatalf("%d %v %f %f", i, v, prob, vec[i])
		}
	}
}

func TestExactStatistics(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n             [2]int
		h             float64
		magnetization float64
		binder        float64
		tol           float64
	}{
		// Deep in the ordered phase every spin is aligned.
		{n: [2]int{6, 1}, h: 0.01, magnetization: 1, binder: 2.0 / 3, tol: 1e-3},
		// Deep in the disordered phase spins are independent, and the Binder cumulant vanishes as the lattice grows.
		{n: [2]int{8, 1}, h: 1000, magnetization: 0.2734, binder: 0.0833, tol: 5e-3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.n, test.h), func(t *testing.T) {
			t.Parallel()
			vvs := Hamiltonian(TransverseFieldIsing{N: test.n, H: test.h}).Eigen()
			stats, err := ExactStatistics(test.n, vvs)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(stats.EigenValue) != len(vvs) {
				t.Fatalf("%d %d", len(stats.EigenValue), len(vvs))
			}
			if math.Abs(stats.Magnetization-test.magnetization) > test.tol {
				t.Fatalf("%f, expected %f", stats.Magnetization, test.magnetization)
			}
			if math.Abs(stats.BinderCumulant-test.binder) > test.tol {
				t.Fatalf("%f, expected %f", stats.BinderCumulant, test.binder)
			}
		})
	}
}

func TestSampleStatistics(t *testing.T) {
	t.Parallel()
	samples := dense.NewDense(4, 3, []float64{
		1, 1, 1,
		-1, -1, -1,
		1, 1, 1,
		-1, -1, -1,
	})
	stats := SampleStatistics(samples)
	if math.Abs(stats.Magnetization-1) > 1e-12 || math.Abs(stats.BinderCumulant-2.0/3) > 1e-12 {
		t.Fatalf("%#v", stats)
	}

	// |M| is 1 or 3 with equal probability, so <M^2> = 5 and <M^4> = 41.
	samples = dense.NewDense(2, 3, []float64{
		1, -1, 1,
		1, 1, 1,
	})
	stats = SampleStatistics(samples)
	if math.Abs(stats.Magnetization-2.0/3) > 1e-12 || math.Abs(stats.BinderCumulant-(1-41.0/75)) > 1e-12 {
		t.Fatalf("%#v", stats)
	}
}

// exactMachine is the wavefunction given by a vector in the Kronecker product basis.
type exactMachine struct {
	numSpins int
	vec      []complex128
}

func (m exactMachine) NumVisible() int { return m.numSpins }
func (m exactMachine) NumParams() int  { return 1 }

func (m exactMachine) LogVal(dst []complex128, x *dense.Dense) []complex128 {
	r, _ := x.Dims()
	dst = dst[:0]
	for i := range r {
		dst = append(dst, cmplx.Log(m.vec[basisIndex(x.RawRowView(i))]))
	}
	return dst
}

func (m exactMachine) DerLog(x *dense.Dense) *dense.CDense {
	r, _ := x.Dims()
	return dense.NewCDense(r, 1, nil)
}

func TestLocalEnergyOfGroundState(t *testing.T) {
	t.Parallel()
	op := TransverseFieldIsing{N: [2]int{8, 1}, H: 1}
	vvs := Hamiltonian(op).Eigen()
	m := exactMachine{numSpins: op.NumSpins(), vec: vvs[0].Vec}

	s, err := sampler.NewMetropolisLocal(m, 16, sampler.NewMetropolisOptions().Seed(1, 2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	steps, err := sampler.NewStepsRange(100, 200, 10)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	samples, err := sampler.ComputeSamples(s, steps, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	locals, err := sampler.LocalValues(samples.X, samples.LogVals, m, op, 32)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// An eigenstate has the same local energy everywhere.
	for i, e := range locals {
		if cmplx.Abs(e-vvs[0].Val) > 1e-6 {
			t.Fatalf("%d %v, expected %v", i, e, vvs[0].Val)
		}
	}
	if stats := sampler.Statistics(locals); stats.Variance > 1e-10 {
		t.Fatalf("%#v", stats)
	}
}

func TestRBMEnergy(t *testing.T) {
	t.Parallel()
	op := TransverseFieldIsing{N: [2]int{4, 1}, H: 1}
	rbm := machine.NewRBMSpin(op.NumSpins(), 4, 0.3, 7)
	h := Hamiltonian(op)
	x := allStates(op.NumSpins())
	exact := exactEnergy(h, rbm, x)
	exactGrad := exactGradient(h, rbm, x)

	s, err := sampler.NewMetropolisLocal(rbm, 32, sampler.NewMetropolisOptions().Seed(3, 4))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	steps, err := sampler.NewStepsRange(200, 2200, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	samples, err := sampler.ComputeSamples(s, steps, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	locals, err := sampler.LocalValues(samples.X, samples.LogVals, rbm, op, 64)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	stats := sampler.Statistics(locals)
	if math.Abs(real(stats.Mean)-exact) > 10*stats.Sigma+1e-2 {
		t.Fatalf("%#v, expected %f", stats, exact)
	}
	// The variational principle.
	if e0 := real(h.Eigen()[0].Val); real(stats.Mean) < e0-10*stats.Sigma {
		t.Fatalf("%#v %f", stats, e0)
	}

	grad, err := sampler.Gradient(locals, samples.Gradients)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(grad) != rbm.NumParams() {
		t.Fatalf("%d %d", len(grad), rbm.NumParams())
	}
	for k, g := range grad {
		sigma := gradientSigma(locals, samples.Gradients, k)
		if cmplx.Abs(g-exactGrad[k]) > 10*sigma+1e-2 {
			t.Fatalf("%d %v, expected %v, sigma %f", k, g, exactGrad[k], sigma)
		}
	}
}

func TestRBMGradient(t *testing.T) {
	t.Parallel()
	op := TransverseFieldIsing{N: [2]int{4, 1}, H: 1}
	rbm := machine.NewRBMSpin(op.NumSpins(), 4, 0.3, 11)
	h := Hamiltonian(op)
	x := allStates(op.NumSpins())
	grad := exactGradient(h, rbm, x)
	params := rbm.Params()

	// conj(grad[k]) is dE/dconj(p_k) = (dE/dRe(p_k) + i dE/dIm(p_k)) / 2.
	energyAt := func(k int, dp complex128) float64 {
		p := slices.Clone(params)
		p[k] += dp
		if err := rbm.SetParams(p); err != nil {
			t.Fatalf("%+v", err)
		}
		return exactEnergy(h, rbm, x)
	}
	const eps = 1e-2
	for k := range params {
		dRe := (energyAt(k, eps) - energyAt(k, -eps)) / (2 * eps)
		dIm := (energyAt(k, eps*1i) - energyAt(k, -eps*1i)) / (2 * eps)
		derivative := complex(dRe, dIm) / 2
		if cmplx.Abs(cmplx.Conj(grad[k])-derivative) > 2e-3 {
			t.Fatalf("%d %v, expected %v", k, cmplx.Conj(grad[k]), derivative)
		}
	}

	// A small step downhill lowers the energy.
	if err := rbm.SetParams(params); err != nil {
		t.Fatalf("%+v", err)
	}
	before := exactEnergy(h, rbm, x)
	descended := slices.Clone(params)
	if err := Descend(descended, grad, 0.01); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := rbm.SetParams(descended); err != nil {
		t.Fatalf("%+v", err)
	}
	if after := exactEnergy(h, rbm, x); after >= before {
		t.Fatalf("%f, expected below %f", after, before)
	}

	if err := Descend(descended, grad[1:], 0.01); err == nil {
		t.Fatalf("expected error")
	}
}

// allStates returns every configuration of numSpins spins, one per row in basis order.
func allStates(numSpins int) *dense.Dense {
	x := dense.NewDense(1<<numSpins, numSpins, nil)
	for i, state := range basis(numSpins) {
		x.SetRow(i, state)
	}
	return x
}

// exactLocal returns the normalized probabilities |psi(x)|^2 and the local energies of the rows of x.
func exactLocal(h *mat.COO, m sampler.Machine, x *dense.Dense) ([]float64, []complex128) {
	logPsi := m.LogVal(nil, x)
	psi := make([]complex128, len(logPsi))
	for i, l := range logPsi {
		psi[i] = cmplx.Exp(l)
	}

	prob := make([]float64, len(psi))
	var norm float64
	for i, v := range psi {
		prob[i] = real(v)*real(v) + imag(v)*imag(v)
		norm += prob[i]
	}
	locals := make([]complex128, len(psi))
	for i := range psi {
		prob[i] /= norm
		for j := range psi {
			if hij := h.At(i, j); hij != 0 {
				locals[i] += hij * psi[j] / psi[i]
			}
		}
	}
	return prob, locals
}

// exactEnergy returns <psi|H|psi> / <psi|psi> by summing over the rows of x.
func exactEnergy(h *mat.COO, m sampler.Machine, x *dense.Dense) float64 {
	prob, locals := exactLocal(h, m, x)
	var e complex128
	for i, p := range prob {
		e += complex(p, 0) * locals[i]
	}
	return real(e)
}

// exactGradient returns <conj(E_loc) D_k> - conj(<E_loc>) <D_k> by summing over the rows of x.
func exactGradient(h *mat.COO, m sampler.Machine, x *dense.Dense) []complex128 {
	prob, locals := exactLocal(h, m, x)
	derLog := m.DerLog(x)
	var energy complex128
	for i, p := range prob {
		energy += complex(p, 0) * locals[i]
	}

	grad := make([]complex128, m.NumParams())
	for k := range grad {
		var cov, meanD complex128
		for i, p := range prob {
			cov += complex(p, 0) * cmplx.Conj(locals[i]) * derLog.At(i, k)
			meanD += complex(p, 0) * derLog.At(i, k)
		}
		grad[k] = cov - cmplx.Conj(energy)*meanD
	}
	return grad
}

// gradientSigma returns the standard error of the k-th component of the gradient estimate, ignoring autocorrelation.
func gradientSigma(locals []complex128, derLog *dense.CDense, k int) float64 {
	n := len(locals)
	var meanV, meanD complex128
	for i, v := range locals {
		meanV += v
		meanD += derLog.At(i, k)
	}
	meanV /= complex(float64(n), 0)
	meanD /= complex(float64(n), 0)

	terms := make([]complex128, n)
	var meanT complex128
	for i, v := range locals {
		terms[i] = cmplx.Conj(v-meanV) * (derLog.At(i, k) - meanD)
		meanT += terms[i]
	}
	meanT /= complex(float64(n), 0)
	var variance float64
	for _, term := range terms {
		d := cmplx.Abs(term - meanT)
		variance += d * d
	}
	variance /= float64(n)
	return math.Sqrt(variance / float64(n))
}

// kronHamiltonian writes the Hamiltonian of an n[0] x n[1] lattice with field strength h into hamiltonian,
// building it term by term from Kronecker products of Pauli matrices.
// It is the reference that Hamiltonian is checked against.
func kronHamiltonian(hamiltonian, buf mat.Matrix, n [2]int, h complex128) {
	numSpins := n[0] * n[1]
	hamiltonian.Zeros(1<<numSpins, 1<<numSpins)

	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			up := y - 1
			if up >= 0 {
				kronCoupling(hamiltonian, n, [2]int{up, x}, [2]int{y, x}, buf)
			}

			left := x - 1
			if left >= 0 {
				kronCoupling(hamiltonian, n, [2]int{y, left}, [2]int{y, x}, buf)
			}

			kronMagnetic(hamiltonian, n, [2]int{y, x}, h, buf)
		}
	}
}

func kronCoupling(hamiltonian mat.Matrix, n [2]int, i [2]int, j [2]int, system mat.Matrix) {
	system.Scalar(1)
	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			yx := [2]int{y, x}

			switch {
			case yx == i || yx == j:
				system.Kron(mat.M(mat.PauliZ))
			default:
				system.Kron(mat.COOIdentity(2))
			}
		}
	}

	hamiltonian.Add(-1, system)
}

func kronMagnetic(hamiltonian mat.Matrix, n [2]int, i [2]int, h complex128, system mat.Matrix) {
	system.Scalar(1)
	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			yx := [2]int{y, x}
			switch {
			case yx == i:
				system.Kron(mat.M(mat.PauliX))
			default:
				system.Kron(mat.COOIdentity(2))
			}
		}
	}

	hamiltonian.Add(-h, system)
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
