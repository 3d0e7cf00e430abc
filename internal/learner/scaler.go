// Package learner holds the incremental standardiser and logistic classifier used
// by the trainer, plus small evaluation helpers.
package learner

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrDimension  = errors.New("feature dimension mismatch")
	ErrNotFitted  = errors.New("model has not seen any samples")
	ErrEmptyBatch = errors.New("empty batch")
)

// Scaler standardises features to zero mean and unit variance. Its moments can be
// updated batch by batch; merging uses the pairwise (Chan) update so that partial
// fits over a split dataset equal one fit over the whole.
type Scaler struct {
	Count int64     `json:"n_samples_seen"`
	Mean  []float64 `json:"mean"`
	Var   []float64 `json:"var"`
}

// NewScaler returns an empty scaler for n features.
func NewScaler(n int) *Scaler {
	return &Scaler{Mean: make([]float64, n), Var: make([]float64, n)}
}

// Fit resets the scaler and fits it on x.
func (s *Scaler) Fit(x [][]float64) error {
	s.Count = 0
	for j := range s.Mean {
		s.Mean[j], s.Var[j] = 0, 0
	}
	return s.PartialFit(x)
}

// PartialFit merges the moments of x into the running moments.
func (s *Scaler) PartialFit(x [][]float64) error {
	if len(x) == 0 {
		return ErrEmptyBatch
	}
	if err := checkDims(x, len(s.Mean)); err != nil {
		return err
	}
	nb := float64(len(x))
	na := float64(s.Count)
	n := na + nb
	col := make([]float64, len(x))
	for j := range s.Mean {
		for i := range x {
			col[i] = x[i][j]
		}
		mb, vb := stat.PopMeanVariance(col, nil)
		delta := mb - s.Mean[j]
		m2 := s.Var[j]*na + vb*nb + delta*delta*na*nb/n
		s.Mean[j] += delta * nb / n
		s.Var[j] = m2 / n
	}
	s.Count += int64(len(x))
	return nil
}

// Scale returns the per-feature standard deviation, with zero mapped to one.
func (s *Scaler) Scale() []float64 {
	out := make([]float64, len(s.Var))
	for j, v := range s.Var {
		sd := math.Sqrt(v)
		if sd == 0 {
			sd = 1
		}
		out[j] = sd
	}
	return out
}

// Transform returns a standardised copy of x.
func (s *Scaler) Transform(x [][]float64) ([][]float64, error) {
	if s.Count == 0 {
		return nil, ErrNotFitted
	}
	if err := checkDims(x, len(s.Mean)); err != nil {
		return nil, err
	}
	scale := s.Scale()
	out := make([][]float64, len(x))
	for i, row := range x {
		z := make([]float64, len(row))
		for j, v := range row {
			z[j] = (v - s.Mean[j]) / scale[j]
		}
		out[i] = z
	}
	return out, nil
}

func checkDims(x [][]float64, n int) error {
	for i, row := range x {
		if len(row) != n {
			return fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), n, ErrDimension)
		}
	}
	return nil
}
