package vmc

import (
	"math/cmplx"

	"github.com/pkg/errors"
)

// Descend takes one gradient descent step on the energy, params[k] -= learningRate * conj(grad[k]).
// grad is the estimate of sampler.Gradient, whose conjugate is the derivative of the energy with respect to conj(params[k]).
func Descend(params, grad []complex128, learningRate float64) error {
	if len(params) != len(grad) {
		return errors.Errorf("%d %d", len(params), len(grad))
	}
	for k := range params {
		params[k] -= complex(learningRate, 0) * cmplx.Conj(grad[k])
	}
	return nil
}
