package cplscheme

import "github.com/opencoupler/core/internal/core"

// Compositional composes N sub-schemes, delegating each operation in
// declaration order. The composition is
// ongoing iff any sub-scheme is ongoing; a window is complete iff every
// sub-scheme reports a complete window in the same outer step; action
// queries union per action kind across sub-schemes.
type Compositional struct {
	schemes []CouplingScheme
}

// NewCompositional composes schemes in the given order.
func NewCompositional(schemes...CouplingScheme) *Compositional {
	return &Compositional{schemes: schemes}
}

// Initialize implements CouplingScheme.
func (c *Compositional) Initialize(startTime float64, startWindow int) error {
	for _, s := range c.schemes {
		if err := s.Initialize(startTime, startWindow); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveResultOfFirstAdvance implements CouplingScheme.
func (c *Compositional) ReceiveResultOfFirstAdvance() error {
	for _, s := range c.schemes {
		if err := s.ReceiveResultOfFirstAdvance(); err != nil {
			return err
		}
	}
	return nil
}

// FirstSynchronization implements CouplingScheme.
func (c *Compositional) FirstSynchronization() error {
	for _, s := range c.schemes {
		if err := s.FirstSynchronization(); err != nil {
			return err
		}
	}
	return nil
}

// FirstExchange implements CouplingScheme.
func (c *Compositional) FirstExchange() error {
	for _, s := range c.schemes {
		if err := s.FirstExchange(); err != nil {
			return err
		}
	}
	return nil
}

// SecondSynchronization implements CouplingScheme.
func (c *Compositional) SecondSynchronization() error {
	for _, s := range c.schemes {
		if err := s.SecondSynchronization(); err != nil {
			return err
		}
	}
	return nil
}

// SecondExchange implements CouplingScheme.
func (c *Compositional) SecondExchange() error {
	for _, s := range c.schemes {
		if err := s.SecondExchange(); err != nil {
			return err
		}
	}
	return nil
}

// Finalize implements CouplingScheme.
func (c *Compositional) Finalize() error {
	for _, s := range c.schemes {
		if err := s.Finalize(); err != nil {
			return err
		}
	}
	return nil
}

// IsCouplingOngoing implements CouplingScheme.
func (c *Compositional) IsCouplingOngoing() bool {
	for _, s := range c.schemes {
		if s.IsCouplingOngoing() {
			return true
		}
	}
	return false
}

// IsTimeWindowComplete implements CouplingScheme.
func (c *Compositional) IsTimeWindowComplete() bool {
	for _, s := range c.schemes {
		if !s.IsTimeWindowComplete() {
			return false
		}
	}
	return true
}

// HasDataBeenReceived implements CouplingScheme.
func (c *Compositional) HasDataBeenReceived() bool {
	for _, s := range c.schemes {
		if s.HasDataBeenReceived() {
			return true
		}
	}
	return false
}

// HasTimeWindowSize implements CouplingScheme, deferring to the first
// sub-scheme: every sub-scheme in a composition shares the same outer
// time-window grid.
func (c *Compositional) HasTimeWindowSize() bool { return c.schemes[0].HasTimeWindowSize() }

// GetTimeWindowSize implements CouplingScheme.
func (c *Compositional) GetTimeWindowSize() float64 { return c.schemes[0].GetTimeWindowSize() }

// GetTime implements CouplingScheme.
func (c *Compositional) GetTime() float64 { return c.schemes[0].GetTime() }

// GetTimeWindows implements CouplingScheme.
func (c *Compositional) GetTimeWindows() int { return c.schemes[0].GetTimeWindows() }

// GetThisTimeWindowRemainder implements CouplingScheme.
func (c *Compositional) GetThisTimeWindowRemainder() float64 {
	return c.schemes[0].GetThisTimeWindowRemainder()
}

// GetNextTimestepMaxLength implements CouplingScheme, taking the strictest
// (smallest) bound across sub-schemes.
func (c *Compositional) GetNextTimestepMaxLength() float64 {
	min := c.schemes[0].GetNextTimestepMaxLength()
	for _, s := range c.schemes[1:] {
		if v := s.GetNextTimestepMaxLength(); v < min {
			min = v
		}
	}
	return min
}

// IsActionRequired implements CouplingScheme: required if any sub-scheme
// requires it.
func (c *Compositional) IsActionRequired(a core.Action) bool {
	for _, s := range c.schemes {
		if s.IsActionRequired(a) {
			return true
		}
	}
	return false
}

// MarkActionFulfilled implements CouplingScheme: fulfills it on every
// sub-scheme.
func (c *Compositional) MarkActionFulfilled(a core.Action) {
	for _, s := range c.schemes {
		s.MarkActionFulfilled(a)
	}
}

// RequireAction implements CouplingScheme.
func (c *Compositional) RequireAction(a core.Action) {
	for _, s := range c.schemes {
		s.RequireAction(a)
	}
}
