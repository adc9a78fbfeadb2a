// Package waveform implements the per-read-data time-series buffer (component
// D): up to order+1 window-boundary snapshots of a data buffer, sampled at a
// normalized position inside the current window via Lagrange interpolation.
package waveform

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/opencoupler/core/internal/core"
)

// Waveform stores up to order+1 most-recent window snapshots of one
// read-data's value buffer and interpolates between them.
type Waveform struct {
	order int
	bufSize int
	// samples[0] is the oldest retained snapshot, samples[len-1] is the
	// current window's.
	samples [][]float64
}

// New creates a waveform for a buffer of bufSize values with order+1 stored
// samples (order 0 keeps just the most recent sample).
func New(order, bufSize int) (*Waveform, error) {
	if order < 0 {
		return nil, fmt.Errorf("waveform order must be >= 0, got %d: %w", order, core.ErrInvalidArgument.Error())
	}
	return &Waveform{order: order, bufSize: bufSize}, nil
}

// Initialize seeds every stored slot with initialValues, so early samples
// (before the first moveToNextWindow) are well-defined.
func (w *Waveform) Initialize(initialValues []float64) error {
	if len(initialValues) != w.bufSize {
		return fmt.Errorf("waveform: expected %d initial values, got %d: %w", w.bufSize, len(initialValues), core.ErrInvalidArgument.Error())
	}
	w.samples = make([][]float64, w.order+1)
	for i := range w.samples {
		cp := make([]float64, w.bufSize)
		copy(cp, initialValues)
		w.samples[i] = cp
	}
	return nil
}

// Store overwrites the current-window sample.
func (w *Waveform) Store(values []float64) error {
	if len(w.samples) == 0 {
		return fmt.Errorf("waveform not initialized: %w", core.ErrInvalidState.Error())
	}
	if len(values) != w.bufSize {
		return fmt.Errorf("waveform: expected %d values, got %d: %w", w.bufSize, len(values), core.ErrInvalidArgument.Error())
	}
	copy(w.samples[len(w.samples)-1], values)
	return nil
}

// MoveToNextWindow rotates the stored samples, dropping the oldest.
func (w *Waveform) MoveToNextWindow() {
	if len(w.samples) == 0 {
		return
	}
	newest := w.samples[len(w.samples)-1]
	copy(w.samples, w.samples[1:])
	w.samples[len(w.samples)-1] = append([]float64(nil), newest...)
}

// SampleAt returns the Lagrange interpolation of the stored samples at
// normalized time t in [0,1], where t=1 returns the most recent sample
// exactly.
func (w *Waveform) SampleAt(t float64) ([]float64, error) {
	if len(w.samples) == 0 {
		return nil, fmt.Errorf("waveform not initialized: %w", core.ErrInvalidState.Error())
	}
	if t < 0 || t > 1 {
		return nil, fmt.Errorf("waveform sample time %v out of [0,1]: %w", t, core.ErrInvalidArgument.Error())
	}
	n := len(w.samples)
	if n == 1 {
		out := make([]float64, w.bufSize)
		copy(out, w.samples[0])
		return out, nil
	}
	// Node k in [0,n) is at normalized time k/(n-1); sample 0 is the oldest,
	// sample n-1 (time 1) is the newest/current window.
	weights := make([]float64, n)
	for k := 0; k < n; k++ {
		tk := float64(k) / float64(n-1)
		weight := 1.0
		for j := 0; j < n; j++ {
			if j == k {
				continue
			}
			tj := float64(j) / float64(n-1)
			weight *= (t - tj) / (tk - tj)
		}
		weights[k] = weight
	}
	out := make([]float64, w.bufSize)
	for i := 0; i < w.bufSize; i++ {
		col := make([]float64, n)
		for k := 0; k < n; k++ {
			col[k] = w.samples[k][i]
		}
		out[i] = floats.Dot(weights, col)
	}
	return out, nil
}

// Order reports the interpolation order this waveform was built for.
func (w *Waveform) Order() int { return w.order }
