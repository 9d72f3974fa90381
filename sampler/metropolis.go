// Package sampler implements batched Metropolis-Hastings sampling of |psi(x)|^2 for variational wavefunctions,
// and the Monte Carlo estimators built on top of the samples.
//
// References:
//   - Solving the quantum many-body problem with artificial neural networks, Giuseppe Carleo and Matthias Troyer
package sampler

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Machine is a variational wavefunction.
type Machine interface {
	// NumVisible returns the number of sites of a configuration.
	NumVisible() int
	// NumParams returns the number of variational parameters.
	NumParams() int
	// LogVal writes log(psi(x)) of each row of x into dst, growing it if necessary, and returns it.
	LogVal(dst []complex128, x *mat.Dense) []complex128
	// DerLog returns the derivatives of log(psi(x)) with respect to the parameters, one row per row of x.
	DerLog(x *mat.Dense) *mat.CDense
}

// MetropolisOptions are options for the local Metropolis sampler.
type MetropolisOptions struct {
	localStates []float64
	seed        [2]uint64
}

// NewMetropolisOptions returns the default options: spin-1/2 local states {-1, 1} and a random seed.
func NewMetropolisOptions() MetropolisOptions {
	opt := MetropolisOptions{}
	opt.localStates = []float64{-1, 1}
	opt.seed = [2]uint64{rand.Uint64(), rand.Uint64()}
	return opt
}

// LocalStates sets the allowed values of a site.
func (opt MetropolisOptions) LocalStates(states ...float64) MetropolisOptions {
	opt.localStates = slices.Clone(states)
	return opt
}

// Seed sets the seed of the PCG random engine owned by the sampler.
func (opt MetropolisOptions) Seed(seed1, seed2 uint64) MetropolisOptions {
	opt.seed = [2]uint64{seed1, seed2}
	return opt
}

// MetropolisLocal is a Metropolis-Hastings sampler whose proposals change a single site of each chain.
// A MetropolisLocal is not safe for concurrent use, but distinct samplers share no state.
type MetropolisLocal struct {
	machine Machine
	flipper *Flipper

	proposedX *mat.Dense
	proposedY []complex128
	currentY  []complex128
	randoms   []float64
	accept    []bool
	uniform   distuv.Uniform

	ready     bool
	accepted  int
	proposals int
}

// NewMetropolisLocal returns a sampler running batchSize chains for machine.
func NewMetropolisLocal(machine Machine, batchSize int, options ...MetropolisOptions) (*MetropolisLocal, error) {
	opt := NewMetropolisOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	rng := rand.New(rand.NewPCG(opt.seed[0], opt.seed[1]))
	shape := [2]int{batchSize, machine.NumVisible()}
	flipper, err := NewFlipper(shape, opt.localStates, rng)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	s := &MetropolisLocal{
		machine:   machine,
		flipper:   flipper,
		proposedX: mat.NewDense(shape[0], shape[1], nil),
		proposedY: make([]complex128, batchSize),
		currentY:  make([]complex128, batchSize),
		randoms:   make([]float64, batchSize),
		accept:    make([]bool, batchSize),
		uniform:   distuv.Uniform{Min: 0, Max: 1, Src: flipper.Generator()},
	}
	return s, nil
}

func (s *MetropolisLocal) BatchSize() int   { return s.flipper.BatchSize() }
func (s *MetropolisLocal) SystemSize() int  { return s.flipper.SystemSize() }
func (s *MetropolisLocal) Machine() Machine { return s.machine }

// Ready reports whether Reset has been called.
func (s *MetropolisLocal) Ready() bool { return s.ready }

// Read returns the current configurations and their log amplitudes.
// Both are owned by the sampler and are only valid until the next call to Next or Reset.
func (s *MetropolisLocal) Read() (*mat.Dense, []complex128) {
	if !s.ready {
		panic("sampler not reset")
	}
	return s.flipper.Current(), s.currentY
}

// Reset randomizes the chains and evaluates the machine on them.
func (s *MetropolisLocal) Reset() error {
	s.ready = false
	s.flipper.Reset()
	y := s.machine.LogVal(s.currentY, s.flipper.Current())
	if len(y) != s.BatchSize() {
		return errors.Errorf("%d %d", len(y), s.BatchSize())
	}
	s.currentY = y
	s.accepted, s.proposals = 0, 0
	s.ready = true
	return nil
}

// Next makes one Metropolis step in every chain.
func (s *MetropolisLocal) Next() error {
	if !s.ready {
		return errors.Errorf("sampler not reset")
	}

	s.flipper.Proposed(s.proposedX)
	y := s.machine.LogVal(s.proposedY, s.proposedX)
	if len(y) != s.BatchSize() {
		return errors.Errorf("%d %d", len(y), s.BatchSize())
	}
	s.proposedY = y

	for i := range s.randoms {
		s.randoms[i] = s.uniform.Rand()
	}
	for i := range s.accept {
		s.accept[i] = s.randoms[i] < acceptance(s.proposedY[i], s.currentY[i])
	}

	s.flipper.Next(s.accept)
	for i, ok := range s.accept {
		if ok {
			s.currentY[i] = s.proposedY[i]
			s.accepted++
		}
	}
	s.proposals += len(s.accept)
	return nil
}

// Acceptance returns the fraction of proposals accepted since the last Reset, or 0 if there were none.
func (s *MetropolisLocal) Acceptance() float64 {
	if s.proposals == 0 {
		return 0
	}
	return float64(s.accepted) / float64(s.proposals)
}

// acceptance returns min(1, |psi(proposed)/psi(current)|^2).
// A non-finite proposed amplitude is never accepted, and a chain whose current amplitude is not finite always moves.
func acceptance(proposed, current complex128) float64 {
	if cmplx.IsNaN(proposed) || cmplx.IsInf(proposed) {
		return 0
	}
	if cmplx.IsNaN(current) || cmplx.IsInf(current) {
		return 1
	}
	return math.Min(1, math.Exp(2*(real(proposed)-real(current))))
}

func (s *MetropolisLocal) String() string {
	return fmt.Sprintf("MetropolisLocal{batch: %d, sites: %d, acceptance: %.3f}", s.BatchSize(), s.SystemSize(), s.Acceptance())
}
