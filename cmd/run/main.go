// Command run searches for the ground state of the transverse field Ising model with an RBM wavefunction.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fumin/vmc"
	"github.com/fumin/vmc/machine"
	"github.com/fumin/vmc/sampler"
	"github.com/fumin/vmc/store"
)

const (
	fnameDB = "run.db"

	metaExactEnergy = "exact_energy"
	metaConfig      = "config"
)

var (
	configPath = flag.String("c", "", "config yaml, defaults are used if empty")
	runDir     = flag.String("d", filepath.Join("runs", "vmc"), "run directory")
	logLevel   = flag.String("log", "info", "log level")
	pretty     = flag.Bool("pretty", false, "human readable logs")
)

func main() {
	flag.Parse()
	logger, err := newLogger(*logLevel, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = mainWithErr(ctx, logger)
	stop()
	if err != nil {
		logger.Error().Msgf("%+v", err)
		os.Exit(1)
	}
}

func mainWithErr(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	db, err := store.Open(filepath.Join(*runDir, fnameDB))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()
	if err := db.PutMeta(ctx, metaConfig, fmt.Sprintf("%+v", cfg)); err != nil {
		return errors.Wrap(err, "")
	}

	op := vmc.TransverseFieldIsing{N: cfg.N(), H: cfg.Field}
	if op.NumSpins() <= cfg.ExactMaxSpins {
		vvs := vmc.Hamiltonian(op).Eigen()
		exact, err := vmc.ExactStatistics(op.N, vvs)
		if err != nil {
			return errors.Wrap(err, "")
		}
		if err := db.PutMeta(ctx, metaExactEnergy, strconv.FormatFloat(exact.EigenValue[0], 'f', -1, 64)); err != nil {
			return errors.Wrap(err, "")
		}
		logger.Info().Float64("energy", exact.EigenValue[0]).Float64("magnetization", exact.Magnetization).Float64("binder", exact.BinderCumulant).Msg("exact")
	}

	rbm := machine.NewRBMSpin(op.NumSpins(), cfg.Hidden, cfg.InitSigma, cfg.Seed)
	s, err := sampler.NewMetropolisLocal(rbm, cfg.Chains, sampler.NewMetropolisOptions().Seed(cfg.Seed, cfg.Seed+1))
	if err != nil {
		return errors.Wrap(err, "")
	}
	steps, err := cfg.Steps()
	if err != nil {
		return errors.Wrap(err, "")
	}

	var samples sampler.Samples
	for i := range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("iteration %d", i))
		}

		var it store.Iteration
		samples, it, err = iterate(s, rbm, op, steps, cfg)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("iteration %d", i))
		}
		it.Step = i
		if err := db.PutIteration(ctx, it); err != nil {
			return errors.Wrap(err, "")
		}
		logger.Info().Int("step", i).Float64("energy", real(it.Energy)).Float64("sigma", it.EnergySigma).Float64("variance", it.Variance).Float64("acceptance", it.Acceptance).Msg("")
	}

	stats := vmc.SampleStatistics(samples.X)
	logger.Info().Float64("magnetization", stats.Magnetization).Float64("binder", stats.BinderCumulant).Msg("samples")
	return nil
}

// iterate estimates the energy of the current parameters and takes one gradient descent step.
func iterate(s *sampler.MetropolisLocal, rbm *machine.RBMSpin, op vmc.TransverseFieldIsing, steps sampler.StepsRange, cfg Config) (sampler.Samples, store.Iteration, error) {
	// Cached amplitudes are stale after the parameters change.
	if err := s.Reset(); err != nil {
		return sampler.Samples{}, store.Iteration{}, errors.Wrap(err, "")
	}
	samples, err := sampler.ComputeSamples(s, steps, true)
	if err != nil {
		return sampler.Samples{}, store.Iteration{}, errors.Wrap(err, "")
	}
	locals, err := sampler.LocalValues(samples.X, samples.LogVals, rbm, op, cfg.ConnBatch)
	if err != nil {
		return sampler.Samples{}, store.Iteration{}, errors.Wrap(err, "")
	}
	stats := sampler.Statistics(locals)
	grad, err := sampler.Gradient(locals, samples.Gradients)
	if err != nil {
		return sampler.Samples{}, store.Iteration{}, errors.Wrap(err, "")
	}

	params := rbm.Params()
	if err := vmc.Descend(params, grad, cfg.LearningRate); err != nil {
		return sampler.Samples{}, store.Iteration{}, errors.Wrap(err, "")
	}
	if err := rbm.SetParams(params); err != nil {
		return sampler.Samples{}, store.Iteration{}, errors.Wrap(err, "")
	}

	it := store.Iteration{
		Energy:        stats.Mean,
		EnergySigma:   stats.Sigma,
		Variance:      stats.Variance,
		Acceptance:    s.Acceptance(),
		Magnetization: vmc.SampleStatistics(samples.X).Magnetization,
	}
	return samples, it, nil
}
