package sampler

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is wrapped by errors returned from constructors that reject their arguments.
var ErrInvalidArgument = errors.New("invalid argument")

// StepsRange describes a sweep schedule: steps in [Start, End) advancing by Step are recorded.
type StepsRange struct {
	start int
	end   int
	step  int
}

// NewStepsRange returns the schedule (start, end, step).
func NewStepsRange(start, end, step int) (StepsRange, error) {
	s := StepsRange{start: start, end: end, step: step}
	if err := s.CheckValid(); err != nil {
		return StepsRange{}, errors.Wrap(err, "")
	}
	return s, nil
}

// CheckValid fails when the stride is not positive or the range does not advance.
func (s StepsRange) CheckValid() error {
	if s.step <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "step %d", s.step)
	}
	if s.end <= s.start {
		return errors.Wrapf(ErrInvalidArgument, "start %d end %d", s.start, s.end)
	}
	// end - start must be representable.
	if s.start < 0 && s.end > math.MaxInt+s.start {
		return errors.Wrapf(ErrInvalidArgument, "start %d end %d", s.start, s.end)
	}
	return nil
}

func (s StepsRange) Start() int { return s.start }
func (s StepsRange) End() int   { return s.end }
func (s StepsRange) Step() int  { return s.step }

// Size returns the number of recorded steps, ceil((end - start) / step).
func (s StepsRange) Size() int {
	return (s.end-s.start-1)/s.step + 1
}

// Recorded reports whether the output of step i is recorded.
func (s StepsRange) Recorded(i int) bool {
	return i >= s.start && i < s.end && (i-s.start)%s.step == 0
}
