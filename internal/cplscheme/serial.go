package cplscheme

// NewSerialExplicit builds the SerialExplicit variant: First writes, sends, Second reads; Second
// writes back, First reads it in the SecondExchange of the same advance.
func NewSerialExplicit(cfg BaseConfig) (CouplingScheme, error) {
	cfg.Implicit = false
	b, err := newBaseCouplingScheme(cfg)
	if err != nil {
		return nil, err
	}
	b.exchangeFirst = serialExchangeFirst
	b.exchangeSecond = serialExchangeSecondExplicit
	return b, nil
}

// NewSerialImplicit builds the SerialImplicit variant: identical ordering
// to SerialExplicit, except the second participant measures convergence
// and broadcasts the verdict before sending data back.
func NewSerialImplicit(cfg BaseConfig) (CouplingScheme, error) {
	cfg.Implicit = true
	b, err := newBaseCouplingScheme(cfg)
	if err != nil {
		return nil, err
	}
	b.exchangeFirst = serialExchangeFirst
	b.exchangeSecond = serialExchangeSecondImplicit
	return b, nil
}

// serialExchangeFirst is the ordering run during FirstExchange: the first
// participant sends, the second has nothing to do here (it already
// received in ReceiveResultOfFirstAdvance / the previous window's
// exchangeSecond).
func serialExchangeFirst(b *BaseCouplingScheme) error {
	if !b.doesFirstStep {
		return nil
	}
	if err := b.sendTimeWindowSize(); err != nil {
		return err
	}
	return b.sendData(b.sendDataExchanges)
}

// serialExchangeSecondExplicit runs the second half of a serial explicit
// window: the second participant receives, advances, sends back; the first
// participant receives that result to prime its next window.
func serialExchangeSecondExplicit(b *BaseCouplingScheme) (bool, error) {
	if b.doesFirstStep {
		if err := b.receiveData(b.receiveDataExchanges); err != nil {
			return true, err
		}
		b.hasDataBeenReceived = true
		return true, nil
	}
	if err := b.receiveData(b.receiveDataExchanges); err != nil {
		return true, err
	}
	b.hasDataBeenReceived = true
	if !b.isCouplingOngoingLocked() {
		return true, nil
	}
	if err := b.sendTimeWindowSize(); err != nil {
		return true, err
	}
	if err := b.sendData(b.sendDataExchanges); err != nil {
		return true, err
	}
	return true, nil
}

// serialExchangeSecondImplicit runs the second half of a serial implicit
// window. The second participant is
// the convergence-measuring side: it runs doImplicitStep itself (measuring
// and, on non-convergence, accelerating its own data in place) before
// broadcasting the verdict and sending its (possibly accelerated) data
// back. The first participant only receives the verdict and applies the
// matching bookkeeping to its own coupling data via doImplicitStep(known).
func serialExchangeSecondImplicit(b *BaseCouplingScheme) (bool, error) {
	if b.doesFirstStep {
		convergence, err := b.receiveConvergence()
		if err != nil {
			return true, err
		}
		if _, err := b.doImplicitStep(&convergence); err != nil {
			return true, err
		}
		if err := b.receiveData(b.receiveDataExchanges); err != nil {
			return true, err
		}
		b.hasDataBeenReceived = true
		return convergence, nil
	}

	convergence, err := b.doImplicitStep(nil)
	if err != nil {
		return true, err
	}
	if err := b.sendConvergence(convergence); err != nil {
		return true, err
	}
	if err := b.sendData(b.sendDataExchanges); err != nil {
		return true, err
	}
	if b.isCouplingOngoingLocked() || !convergence {
		if err := b.receiveData(b.receiveDataExchanges); err != nil {
			return true, err
		}
		b.hasDataBeenReceived = true
	}
	return convergence, nil
}
