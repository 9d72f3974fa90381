package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Samples are the configurations recorded by ComputeSamples.
// Row k*BatchSize+i holds chain i at the k-th recorded step.
type Samples struct {
	// X holds one configuration per row.
	X *mat.Dense
	// LogVals are the log amplitudes of the rows of X.
	LogVals []complex128
	// Gradients are the log derivatives of the rows of X, nil unless requested.
	Gradients *mat.CDense
}

// Len returns the number of samples.
func (s Samples) Len() int { return len(s.LogVals) }

// ComputeSamples runs sampler for steps.End() steps, recording the chains at the steps selected by steps.
// A sampler that has not been reset is reset first, otherwise sampling continues from its current chains.
func ComputeSamples(sampler *MetropolisLocal, steps StepsRange, computeGradients bool) (Samples, error) {
	if err := steps.CheckValid(); err != nil {
		return Samples{}, errors.Wrap(err, "")
	}
	if steps.Start() < 0 {
		return Samples{}, errors.Wrapf(ErrInvalidArgument, "start %d", steps.Start())
	}
	if !sampler.Ready() {
		if err := sampler.Reset(); err != nil {
			return Samples{}, errors.Wrap(err, "")
		}
	}

	batchSize, systemSize := sampler.BatchSize(), sampler.SystemSize()
	numSamples := steps.Size() * batchSize
	xData := make([]float64, 0, numSamples*systemSize)
	logVals := make([]complex128, 0, numSamples)
	var numParams int
	var gradData []complex128
	if computeGradients {
		numParams = sampler.Machine().NumParams()
		if numParams <= 0 {
			return Samples{}, errors.Errorf("%d", numParams)
		}
		gradData = make([]complex128, 0, numSamples*numParams)
	}

	for i := range steps.End() {
		if err := sampler.Next(); err != nil {
			return Samples{}, errors.Wrap(err, "")
		}
		if !steps.Recorded(i) {
			continue
		}

		x, y := sampler.Read()
		for r := range batchSize {
			xData = append(xData, x.RawRowView(r)...)
		}
		logVals = append(logVals, y...)

		if computeGradients {
			var err error
			gradData, err = appendDerLog(gradData, sampler.Machine(), x, numParams)
			if err != nil {
				return Samples{}, errors.Wrap(err, "")
			}
		}
	}

	samples := Samples{X: mat.NewDense(numSamples, systemSize, xData), LogVals: logVals}
	if computeGradients {
		samples.Gradients = mat.NewCDense(numSamples, numParams, gradData)
	}
	return samples, nil
}

func appendDerLog(dst []complex128, machine Machine, x *mat.Dense, numParams int) ([]complex128, error) {
	d := machine.DerLog(x)
	xr, _ := x.Dims()
	r, c := d.Dims()
	if r != xr || c != numParams {
		return nil, errors.Errorf("%d %d %d %d", r, c, xr, numParams)
	}
	for i := range r {
		for j := range c {
			dst = append(dst, d.At(i, j))
		}
	}
	return dst, nil
}
