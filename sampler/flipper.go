package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Suggestion is a proposed local update of one chain: replace the value at Site with Value.
type Suggestion struct {
	Site  int
	Value float64
}

// Flipper owns the current state of a batch of Markov chains, and suggests which site of each chain to change next.
type Flipper struct {
	// state is a BatchSize x SystemSize matrix, each row is the configuration of one chain.
	state *mat.Dense
	// localStates are the allowed values of a site.
	localStates []float64
	// proposed holds one outstanding suggestion per chain.
	proposed []Suggestion

	rng *rand.Rand
}

// NewFlipper returns a flipper for shape[0] chains of shape[1] sites each.
// The flipper takes ownership of rng, which must not be shared with other flippers.
func NewFlipper(shape [2]int, localStates []float64, rng *rand.Rand) (*Flipper, error) {
	if shape[0] <= 0 || shape[1] <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "shape %v", shape)
	}
	if len(localStates) < 2 {
		return nil, errors.Wrapf(ErrInvalidArgument, "local states %v", localStates)
	}
	for i, v := range localStates {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(ErrInvalidArgument, "local states %v", localStates)
		}
		if slices.Contains(localStates[:i], v) {
			return nil, errors.Wrapf(ErrInvalidArgument, "duplicate local state %v", v)
		}
	}
	if rng == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "nil rng")
	}

	f := &Flipper{
		state:       mat.NewDense(shape[0], shape[1], nil),
		localStates: slices.Clone(localStates),
		proposed:    make([]Suggestion, shape[0]),
		rng:         rng,
	}
	f.Reset()
	return f, nil
}

func (f *Flipper) BatchSize() int {
	r, _ := f.state.Dims()
	return r
}

func (f *Flipper) SystemSize() int {
	_, c := f.state.Dims()
	return c
}

// LocalStates returns the allowed values of a site.
func (f *Flipper) LocalStates() []float64 { return f.localStates }

// Generator returns the random engine owned by the flipper.
func (f *Flipper) Generator() *rand.Rand { return f.rng }

// Reset draws every site of every chain uniformly from the local states, and suggests new flips.
func (f *Flipper) Reset() {
	for i := range f.BatchSize() {
		row := f.state.RawRowView(i)
		for j := range row {
			row[j] = f.localStates[f.rng.IntN(len(f.localStates))]
		}
	}
	f.randomSites()
	f.randomValues()
}

// Next commits the outstanding suggestion of every chain i with accept[i] true, and suggests new flips.
func (f *Flipper) Next(accept []bool) {
	if len(accept) != f.BatchSize() {
		panic(fmt.Sprintf("%d %d", len(accept), f.BatchSize()))
	}
	for i, ok := range accept {
		if !ok {
			continue
		}
		s := f.proposed[i]
		f.state.Set(i, s.Site, s.Value)
	}
	f.randomSites()
	f.randomValues()
}

// Current returns the current state, one chain per row.
// The returned matrix is owned by the flipper and must not be modified.
func (f *Flipper) Current() *mat.Dense {
	return f.state
}

// Read returns the outstanding suggestions, one per chain.
// The returned slice is owned by the flipper and is only valid until the next call to Next or Reset.
func (f *Flipper) Read() []Suggestion {
	return f.proposed
}

// ReadTo copies the current state into x.
func (f *Flipper) ReadTo(x *mat.Dense) {
	f.checkShape(x)
	x.Copy(f.state)
}

// Proposed writes into x the current state with every outstanding suggestion applied.
func (f *Flipper) Proposed(x *mat.Dense) {
	f.checkShape(x)
	x.Copy(f.state)
	for i, s := range f.proposed {
		x.Set(i, s.Site, s.Value)
	}
}

func (f *Flipper) checkShape(x *mat.Dense) {
	xr, xc := x.Dims()
	r, c := f.state.Dims()
	if xr != r || xc != c {
		panic(fmt.Sprintf("%d %d %d %d", xr, xc, r, c))
	}
}

// randomSites picks the site of each suggestion uniformly.
func (f *Flipper) randomSites() {
	n := f.SystemSize()
	for i := range f.proposed {
		f.proposed[i].Site = f.rng.IntN(n)
	}
}

// randomValues picks the value of each suggestion uniformly from all local states except the current one.
func (f *Flipper) randomValues() {
	for i := range f.proposed {
		s := &f.proposed[i]
		cur := slices.Index(f.localStates, f.state.At(i, s.Site))
		k := f.rng.IntN(len(f.localStates) - 1)
		if cur >= 0 && k >= cur {
			k++
		}
		s.Value = f.localStates[k]
	}
}
