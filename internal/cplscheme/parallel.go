package cplscheme

// NewParallelExplicit builds the ParallelExplicit variant: both participants send simultaneously, then
// both receive, with no convergence measurement.
func NewParallelExplicit(cfg BaseConfig) (CouplingScheme, error) {
	cfg.Implicit = false
	b, err := newBaseCouplingScheme(cfg)
	if err != nil {
		return nil, err
	}
	b.receiveFirstAdvance = parallelReceiveFirstAdvance
	b.exchangeFirst = parallelExchangeFirst
	b.exchangeSecond = parallelExchangeSecondExplicit
	return b, nil
}

// NewParallelImplicit builds the ParallelImplicit variant: both participants
// send simultaneously, then both receive; the designated convergence-
// measuring participant (the second, by convention) additionally measures
// and broadcasts the verdict.
func NewParallelImplicit(cfg BaseConfig) (CouplingScheme, error) {
	cfg.Implicit = true
	b, err := newBaseCouplingScheme(cfg)
	if err != nil {
		return nil, err
	}
	b.receiveFirstAdvance = parallelReceiveFirstAdvance
	b.exchangeFirst = parallelExchangeFirst
	b.exchangeSecond = parallelExchangeSecondImplicit
	return b, nil
}

// parallelReceiveFirstAdvance: unlike the serial protocol, a parallel
// participant sends its own initial data during FirstExchange of window 0
// rather than waiting idle, so there is nothing to prime here beyond the
// first-participant time-window-size receive.
func parallelReceiveFirstAdvance(b *BaseCouplingScheme) error {
	return b.receiveTimeWindowSize()
}

// parallelExchangeFirst sends this participant's data unconditionally; the
// peer does the same concurrently.
func parallelExchangeFirst(b *BaseCouplingScheme) error {
	if b.doesFirstStep {
		if err := b.sendTimeWindowSize(); err != nil {
			return err
		}
	}
	return b.sendData(b.sendDataExchanges)
}

// parallelExchangeSecondExplicit receives this participant's data.
func parallelExchangeSecondExplicit(b *BaseCouplingScheme) (bool, error) {
	if !b.doesFirstStep {
		if err := b.receiveTimeWindowSize(); err != nil {
			return true, err
		}
	}
	if err := b.receiveData(b.receiveDataExchanges); err != nil {
		return true, err
	}
	b.hasDataBeenReceived = true
	return true, nil
}

// parallelExchangeSecondImplicit receives data, then the second participant
// (the convergence-measuring side by convention) measures and broadcasts
// the verdict.
func parallelExchangeSecondImplicit(b *BaseCouplingScheme) (bool, error) {
	if !b.doesFirstStep {
		if err := b.receiveTimeWindowSize(); err != nil {
			return true, err
		}
	}
	if err := b.receiveData(b.receiveDataExchanges); err != nil {
		return true, err
	}
	b.hasDataBeenReceived = true

	if b.doesFirstStep {
		convergence, err := b.receiveConvergence()
		if err != nil {
			return true, err
		}
		if _, err := b.doImplicitStep(&convergence); err != nil {
			return true, err
		}
		return convergence, nil
	}

	convergence, err := b.doImplicitStep(nil)
	if err != nil {
		return true, err
	}
	if err := b.sendConvergence(convergence); err != nil {
		return true, err
	}
	return convergence, nil
}
