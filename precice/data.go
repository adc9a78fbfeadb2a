package precice

import (
	"fmt"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/mesh"
)

// resolveData returns the mesh.Data backing dataName on meshName. Every
// read-data/write-data name must also appear as a use-data of meshName: the
// same underlying buffer is shared by the coupling scheme's CouplingData, so
// writes made here are visible to the next exchange without extra copying.
func (s *SolverInterface) resolveData(dataName, meshName string) (dataHandle, error) {
	m, ok := s.meshes[meshName]
	if !ok {
		return dataHandle{}, fmt.Errorf("unknown mesh %q: %w", meshName, core.ErrInvalidArgument.Error())
	}
	id, ok := s.dataIDByName[dataName]
	if !ok {
		return dataHandle{}, fmt.Errorf("unknown data %q: %w", dataName, core.ErrInvalidArgument.Error())
	}
	d, ok := m.Data(id)
	if !ok {
		return dataHandle{}, fmt.Errorf("data %q not declared via use-data on mesh %q: %w", dataName, meshName, core.ErrInvalidArgument.Error())
	}
	return dataHandle{id: id, d: d}, nil
}

type dataHandle struct {
	id core.DataID
	d  *mesh.Data
}

// WriteData writes dataDim values (scalar: 1, vector: the configured space
// dimension) for a single vertex.
func (s *SolverInterface) WriteData(dataName, meshName string, valueIndex core.VertexID, values []float64) error {
	h, err := s.resolveData(dataName, meshName)
	if err != nil {
		return err
	}
	return h.d.SetVertexValue(int(valueIndex), values)
}

// WriteBlockData writes values (flattened vertex-major, dataDim components
// per vertex) for every vertex id in valueIndices, in order.
func (s *SolverInterface) WriteBlockData(dataName, meshName string, valueIndices []core.VertexID, values []float64) error {
	h, err := s.resolveData(dataName, meshName)
	if err != nil {
		return err
	}
	dims := h.d.Dimensions
	if len(values) != len(valueIndices)*dims {
		return fmt.Errorf("data %q: expected %d values for %d vertices, got %d: %w", dataName, len(valueIndices)*dims, len(valueIndices), len(values), core.ErrInvalidArgument.Error())
	}
	for i, idx := range valueIndices {
		if err := h.d.SetVertexValue(int(idx), values[i*dims:(i+1)*dims]); err != nil {
			return err
		}
	}
	return nil
}

// ReadData reads the current dataDim values for a single vertex.
func (s *SolverInterface) ReadData(dataName, meshName string, valueIndex core.VertexID) ([]float64, error) {
	h, err := s.resolveData(dataName, meshName)
	if err != nil {
		return nil, err
	}
	v := h.d.VertexValue(int(valueIndex))
	out := make([]float64, len(v))
	copy(out, v)
	return out, nil
}

// ReadBlockData reads the current values (flattened vertex-major) for every
// vertex id in valueIndices, in order.
func (s *SolverInterface) ReadBlockData(dataName, meshName string, valueIndices []core.VertexID) ([]float64, error) {
	h, err := s.resolveData(dataName, meshName)
	if err != nil {
		return nil, err
	}
	dims := h.d.Dimensions
	out := make([]float64, 0, len(valueIndices)*dims)
	for _, idx := range valueIndices {
		out = append(out, h.d.VertexValue(int(idx))...)
	}
	return out, nil
}

// normalizedReadTime maps a relativeReadTime in [0, remainingWindow] to the
// [0,1] fraction SampleAt expects, accounting for any part of the window
// already consumed by prior sub-steps: n = (W - r + relativeReadTime) / W,
// where r is the window's remaining length. At a fresh window boundary
// r == W, so this reduces to the simpler relativeReadTime/W. Requires a
// fixed, config-declared window size: when the first participant sets the
// window size on the fly, remainingWindow is only known once that
// participant has run its first exchange, which this facade does not track
// separately from the scheme itself, so time-sampled reads are rejected in
// that configuration.
func (s *SolverInterface) normalizedReadTime(relativeReadTime float64) (float64, error) {
	if relativeReadTime < 0 {
		return 0, fmt.Errorf("relativeReadTime must be >= 0, got %v: %w", relativeReadTime, core.ErrInvalidArgument.Error())
	}
	if s.windowSize <= 0 {
		return 0, fmt.Errorf("time-sampled read requires a fixed time-window size: %w", core.ErrNotYetImplemented.Error())
	}
	remainder := s.scheme.GetThisTimeWindowRemainder()
	if relativeReadTime > remainder {
		return 0, fmt.Errorf("relativeReadTime %v exceeds the window's remaining length %v: %w", relativeReadTime, remainder, core.ErrInvalidArgument.Error())
	}
	t := (s.windowSize - remainder + relativeReadTime) / s.windowSize
	return t, nil
}

// ReadDataAtTime samples dataName's waveform at relativeReadTime (seconds
// after the current point in the time window; a negative value or one
// beyond the window's remaining length is rejected) instead of returning
// the latest received values directly.
// dataName must be a read-data: ReadDataAtTime does not apply to data this
// participant writes.
func (s *SolverInterface) ReadDataAtTime(dataName, meshName string, relativeReadTime float64) ([]float64, error) {
	id, ok := s.dataIDByName[dataName]
	if !ok {
		return nil, fmt.Errorf("unknown data %q: %w", dataName, core.ErrInvalidArgument.Error())
	}
	w, ok := s.waveforms[id]
	if !ok {
		return nil, fmt.Errorf("data %q is not a read-data with a time-sampling buffer: %w", dataName, core.ErrInvalidArgument.Error())
	}
	t, err := s.normalizedReadTime(relativeReadTime)
	if err != nil {
		return nil, err
	}
	return w.SampleAt(t)
}
