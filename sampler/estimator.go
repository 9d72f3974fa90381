package sampler

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"
)

// Operator is a quantum operator O acting on configurations.
type Operator interface {
	// Conn returns the configurations y with nonzero <x|O|y> together with the matrix elements.
	// The yielded y may be reused by the operator after yield returns.
	Conn(x []float64) func(yield func(y []float64, mel complex128) bool)
}

// LocalValues returns the local value sum_y <x|O|y> psi(y)/psi(x) of every row x of samples.
// values are the log amplitudes of the rows of samples.
// Connected configurations are evaluated by machine in batches of batchSize rows.
func LocalValues(samples *mat.Dense, values []complex128, machine Machine, op Operator, batchSize int) ([]complex128, error) {
	n, c := samples.Dims()
	if len(values) != n {
		return nil, errors.Wrapf(ErrInvalidArgument, "%d %d", len(values), n)
	}
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "batch size %d", batchSize)
	}

	locals := make([]complex128, n)
	b := newConnBatch(batchSize, c)
	for i := range n {
		var err error
		for y, mel := range op.Conn(samples.RawRowView(i)) {
			if len(y) != c {
				err = errors.Errorf("%d %d %d", i, len(y), c)
				break
			}
			if mel == 0 {
				continue
			}
			b.add(i, y, mel)
			if !b.full() {
				continue
			}
			if err = b.flush(locals, values, machine); err != nil {
				break
			}
		}
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	if err := b.flush(locals, values, machine); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return locals, nil
}

// connBatch accumulates connected configurations until there are enough of them to evaluate the machine.
type connBatch struct {
	x    *mat.Dense
	rows int
	// owner is the sample each row of x is connected to.
	owner []int
	mels  []complex128
	y     []complex128
}

func newConnBatch(batchSize, systemSize int) *connBatch {
	b := &connBatch{
		x:     mat.NewDense(batchSize, systemSize, nil),
		owner: make([]int, batchSize),
		mels:  make([]complex128, batchSize),
		y:     make([]complex128, batchSize),
	}
	return b
}

func (b *connBatch) full() bool {
	r, _ := b.x.Dims()
	return b.rows == r
}

func (b *connBatch) add(sample int, y []float64, mel complex128) {
	copy(b.x.RawRowView(b.rows), y)
	b.owner[b.rows] = sample
	b.mels[b.rows] = mel
	b.rows++
}

func (b *connBatch) flush(locals, values []complex128, machine Machine) error {
	if b.rows == 0 {
		return nil
	}
	// Pad a partial batch with its last row, so that the machine always sees full batches.
	r, _ := b.x.Dims()
	last := b.x.RawRowView(b.rows - 1)
	for k := b.rows; k < r; k++ {
		copy(b.x.RawRowView(k), last)
	}

	y := machine.LogVal(b.y, b.x)
	if len(y) != r {
		return errors.Errorf("%d %d", len(y), r)
	}
	b.y = y
	for k := range b.rows {
		i := b.owner[k]
		locals[i] += b.mels[k] * cmplx.Exp(y[k]-values[i])
	}
	b.rows = 0
	return nil
}

// Gradient returns the covariance <conj(values) D_k> - <conj(values)> <D_k> for every parameter k,
// where D_k is column k of gradients, and the averages are over the samples.
func Gradient(values []complex128, gradients *mat.CDense) ([]complex128, error) {
	if gradients == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "nil gradients")
	}
	n, p := gradients.Dims()
	if len(values) != n {
		return nil, errors.Wrapf(ErrInvalidArgument, "%d %d", len(values), n)
	}

	nc := complex(float64(n), 0)
	meanConj := cmplx.Conj(cmplxs.Sum(values)) / nc
	col := make([]complex128, n)
	grad := make([]complex128, p)
	for k := range p {
		for i := range col {
			col[i] = gradients.At(i, k)
		}
		grad[k] = cmplxs.Dot(values, col)/nc - meanConj*cmplxs.Sum(col)/nc
	}
	return grad, nil
}

// Stats are Monte Carlo statistics of local values.
type Stats struct {
	Mean complex128
	// Variance is the mean of |v - Mean|^2.
	Variance float64
	// Sigma is the error of the mean, sqrt(Variance / N).
	Sigma float64
}

// Statistics returns the statistics of values.
func Statistics(values []complex128) Stats {
	n := len(values)
	if n == 0 {
		nan := math.NaN()
		return Stats{Mean: complex(nan, nan), Variance: nan, Sigma: nan}
	}

	var stats Stats
	stats.Mean = cmplxs.Sum(values) / complex(float64(n), 0)
	diff := make([]complex128, n)
	copy(diff, values)
	cmplxs.AddConst(-stats.Mean, diff)
	norm := cmplxs.Norm(diff, 2)
	stats.Variance = norm * norm / float64(n)
	stats.Sigma = math.Sqrt(stats.Variance / float64(n))
	return stats
}
