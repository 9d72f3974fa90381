package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/vmc/sampler"
)

// Config describes a ground state search.
type Config struct {
	// Lattice size and transverse field.
	Rows  int     `yaml:"rows"`
	Cols  int     `yaml:"cols"`
	Field float64 `yaml:"field"`

	// RBM.
	Hidden    int     `yaml:"hidden"`
	InitSigma float64 `yaml:"init_sigma"`

	// Sampling, per iteration.
	Seed      uint64 `yaml:"seed"`
	Chains    int    `yaml:"chains"`
	Warmup    int    `yaml:"warmup"`
	Sweeps    int    `yaml:"sweeps"`
	Thin      int    `yaml:"thin"`
	ConnBatch int    `yaml:"conn_batch"`

	// Optimisation.
	Iterations   int     `yaml:"iterations"`
	LearningRate float64 `yaml:"learning_rate"`

	// Systems with at most this many spins are also diagonalised exactly.
	ExactMaxSpins int `yaml:"exact_max_spins"`
}

func defaultConfig() Config {
	return Config{
		Rows:          8,
		Cols:          1,
		Field:         1,
		Hidden:        8,
		InitSigma:     0.01,
		Seed:          1,
		Chains:        32,
		Warmup:        100,
		Sweeps:        32,
		Thin:          8,
		ConnBatch:     1024,
		Iterations:    300,
		LearningRate:  0.02,
		ExactMaxSpins: 12,
	}
}

func loadConfig(fpath string) (Config, error) {
	cfg := defaultConfig()
	if fpath == "" {
		return cfg, nil
	}

	f, err := os.Open(fpath)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, fpath)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, fpath)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return errors.Errorf("lattice %d %d", c.Rows, c.Cols)
	}
	if c.Field < 0 {
		return errors.Errorf("field %f", c.Field)
	}
	if c.Hidden <= 0 {
		return errors.Errorf("hidden %d", c.Hidden)
	}
	if c.Chains <= 0 || c.ConnBatch <= 0 {
		return errors.Errorf("chains %d conn_batch %d", c.Chains, c.ConnBatch)
	}
	if c.Warmup < 0 {
		return errors.Errorf("warmup %d", c.Warmup)
	}
	if _, err := c.Steps(); err != nil {
		return errors.Wrap(err, "")
	}
	if c.Iterations <= 0 || c.LearningRate <= 0 {
		return errors.Errorf("iterations %d learning_rate %f", c.Iterations, c.LearningRate)
	}
	return nil
}

// Steps returns the steps recorded in each iteration, a thinned run after the warmup.
func (c Config) Steps() (sampler.StepsRange, error) {
	return sampler.NewStepsRange(c.Warmup, c.Warmup+c.Sweeps*c.Thin, c.Thin)
}

func (c Config) N() [2]int { return [2]int{c.Rows, c.Cols} }
