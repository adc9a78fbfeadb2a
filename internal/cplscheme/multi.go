package cplscheme

import (
	"fmt"
	"math"

	log "github.com/golang/glog"

	"github.com/opencoupler/core/internal/acceleration"
	"github.com/opencoupler/core/internal/comm"
	"github.com/opencoupler/core/internal/core"
)

// MultiCoupling is the controller side of an N-way coupling: one
// participant (the controller) talks to every peer in turn, aggregates all
// peers' exchanged data into a single combined DataMap, and runs one
// implicit procedure across that aggregate rather than one per peer. Each
// peer itself runs an ordinary bilateral scheme (typically SerialImplicit)
// addressed at the controller, unaware it is one of several.
//
// The controller always announces the time window size and always runs
// the convergence measurement, mirroring how a BaseCouplingScheme's first
// participant and convergence-measuring side are both fixed roles rather
// than configurable per peer.
type MultiCoupling struct {
	localParticipant string
	peers            []*multiPeer

	maxTime        float64
	maxTimeWindows int
	timeWindowSize float64
	eps            float64

	time                   float64
	timeWindows            int
	computedTimeWindowPart float64
	isTimeWindowComplete   bool
	hasDataBeenReceived    bool
	isInitialized          bool

	maxIterations   int
	iterations      int
	totalIterations int

	allData             map[core.DataID]*acceleration.CouplingData
	convergenceMeasures []convergenceMeasureContext
	accel               acceleration.Acceleration

	requiredActions  map[core.Action]bool
	fulfilledActions map[core.Action]bool

	iterLog *iterationLog
	convLog *convergenceLog
}

// multiPeer holds one peer's transport and the exchanges routed over it.
type multiPeer struct {
	name                 string
	communication        comm.Communication
	sendDataExchanges    []*ExchangeData
	receiveDataExchanges []*ExchangeData
}

// PeerHandle names a peer registered with AddPeer, used to attach exchanges
// to the right connection.
type PeerHandle int

// MultiConfig groups MultiCoupling's construction parameters.
type MultiConfig struct {
	LocalParticipant string
	MaxTime          float64
	MaxTimeWindows   int
	TimeWindowSize   float64
	ValidDigits      int
	MaxIterations    int
}

// NewMultiCoupling builds the controller side of a multi-coupling. Peers
// are attached afterwards with AddPeer.
func NewMultiCoupling(cfg MultiConfig) *MultiCoupling {
	if cfg.ValidDigits <= 0 {
		cfg.ValidDigits = core.DefaultValidDigits
	}
	return &MultiCoupling{
		localParticipant: cfg.LocalParticipant,
		maxTime:          cfg.MaxTime,
		maxTimeWindows:   cfg.MaxTimeWindows,
		timeWindowSize:   cfg.TimeWindowSize,
		eps:              math.Pow(10, float64(-cfg.ValidDigits)),
		maxIterations:    cfg.MaxIterations,
		iterations:       1,
		totalIterations:  1,
		allData:          make(map[core.DataID]*acceleration.CouplingData),
		requiredActions:  make(map[core.Action]bool),
		fulfilledActions: make(map[core.Action]bool),
	}
}

// AddPeer registers one peer connection, returning the handle used by
// AddExchange.
func (m *MultiCoupling) AddPeer(name string, c comm.Communication) PeerHandle {
	m.peers = append(m.peers, &multiPeer{name: name, communication: c})
	return PeerHandle(len(m.peers) - 1)
}

// AddExchange routes ex over the peer connection named by handle, in the
// direction implied by send.
func (m *MultiCoupling) AddExchange(handle PeerHandle, ex *ExchangeData, send bool) {
	if _, ok := m.allData[ex.Data.DataID]; !ok {
		m.allData[ex.Data.DataID] = ex.Data
	}
	p := m.peers[handle]
	if send {
		p.sendDataExchanges = append(p.sendDataExchanges, ex)
	} else {
		p.receiveDataExchanges = append(p.receiveDataExchanges, ex)
	}
}

// AddConvergenceMeasure registers a convergence measure evaluated against
// the combined data of every peer.
func (m *MultiCoupling) AddConvergenceMeasure(data *acceleration.CouplingData, name string, measure ConvergenceMeasure, suffices, strict, logging bool) {
	m.convergenceMeasures = append(m.convergenceMeasures, convergenceMeasureContext{
		data: data, dataName: name, measure: measure, suffices: suffices, strict: strict, doesLogging: logging,
	})
}

// SetAcceleration attaches a fixed-point accelerator run across every
// peer's aggregated data.
func (m *MultiCoupling) SetAcceleration(a acceleration.Acceleration) {
	m.accel = a
}

// Initialize implements CouplingScheme.
func (m *MultiCoupling) Initialize(startTime float64, startWindow int) error {
	m.time = startTime
	m.timeWindows = startWindow
	if len(m.convergenceMeasures) == 0 {
		return fmt.Errorf("multi coupling scheme requires at least one convergence measure: %w", core.ErrConfigSemantics.Error())
	}
	for _, p := range m.peers {
		for _, ex := range p.sendDataExchanges {
			if ex.Data.RequiresInitialization() {
				m.RequireAction(core.ActionInitializeData)
			}
		}
	}
	m.iterLog = newIterationLog(m.localParticipant, true, m.accel != nil)
	m.convLog = newConvergenceLog(m.localParticipant, m.convergenceMeasures)
	m.isInitialized = true
	log.Infof("cplscheme %q: initialized multi coupling with %d peers at t=%v, window=%d", m.localParticipant, len(m.peers), startTime, startWindow)
	return nil
}

// ReceiveResultOfFirstAdvance implements CouplingScheme: the controller
// always sends first, so there is nothing to receive ahead of its own
// first advance.
func (m *MultiCoupling) ReceiveResultOfFirstAdvance() error { return nil }

// FirstSynchronization implements CouplingScheme.
func (m *MultiCoupling) FirstSynchronization() error { return nil }

// FirstExchange implements CouplingScheme: the controller announces the
// time window size and sends to every peer in registration order.
func (m *MultiCoupling) FirstExchange() error {
	for _, p := range m.peers {
		if err := p.communication.Primary().SendScalar(m.computedTimeWindowPart); err != nil {
			return err
		}
		if err := sendExchanges(p.communication, p.sendDataExchanges); err != nil {
			return err
		}
	}
	return nil
}

// SecondSynchronization implements CouplingScheme.
func (m *MultiCoupling) SecondSynchronization() error { return nil }

// SecondExchange implements CouplingScheme: receives every peer's data,
// runs one implicit step across the combined aggregate, then broadcasts
// the verdict and, while coupling is ongoing or the window did not
// converge, the (possibly accelerated) data back to every peer in the same
// fixed order.
func (m *MultiCoupling) SecondExchange() error {
	m.hasDataBeenReceived = false
	m.isTimeWindowComplete = false
	if !m.reachedEndOfTimeWindow() {
		return nil
	}

	for _, p := range m.peers {
		if err := receiveExchanges(p.communication, p.receiveDataExchanges); err != nil {
			return err
		}
	}
	m.hasDataBeenReceived = true

	converged, err := m.doImplicitStep()
	if err != nil {
		return err
	}
	for _, p := range m.peers {
		if err := p.communication.Primary().SendBool(converged); err != nil {
			return err
		}
	}
	if m.isCouplingOngoingLocked() || !converged {
		for _, p := range m.peers {
			if err := sendExchanges(p.communication, p.sendDataExchanges); err != nil {
				return err
			}
		}
	}

	m.timeWindows++
	if converged {
		m.isTimeWindowComplete = true
		m.computedTimeWindowPart = 0
		if m.isCouplingOngoingLocked() {
			m.RequireAction(core.ActionWriteCheckpoint)
		}
		if m.iterLog != nil {
			m.iterLog.write(m.timeWindows-1, m.totalIterations, m.iterations, true, m.accel)
		}
		m.iterations = 1
	} else {
		m.timeWindows--
		m.time -= m.computedTimeWindowPart
		m.computedTimeWindowPart = 0
		m.RequireAction(core.ActionReadCheckpoint)
		m.iterations++
		m.totalIterations++
	}
	return nil
}

func (m *MultiCoupling) doImplicitStep() (bool, error) {
	for _, d := range m.allData {
		d.StoreExtrapolationData()
	}

	hasConverged, err := measureConvergence(m.convergenceMeasures, m.iterations, m.maxIterations)
	if err != nil {
		return false, err
	}
	if m.convLog != nil {
		m.convLog.write(m.timeWindows-1, m.iterations, m.convergenceMeasures)
	}
	if m.maxIterations > 0 && m.iterations == m.maxIterations {
		hasConverged = true
	}

	accelData := acceleration.DataMap(m.allData)
	if hasConverged {
		if m.accel != nil {
			if err := m.accel.IterationsConverged(accelData); err != nil {
				return false, err
			}
		}
		for _, d := range m.allData {
			d.MoveToNextWindow()
		}
	} else if m.accel != nil {
		if err := m.accel.PerformAcceleration(accelData); err != nil {
			return false, err
		}
	}
	for _, d := range m.allData {
		d.StoreIteration()
	}
	return hasConverged, nil
}

// Finalize implements CouplingScheme.
func (m *MultiCoupling) Finalize() error {
	if !m.isInitialized {
		return fmt.Errorf("finalize called before initialize: %w", core.ErrWrongState.Error())
	}
	for a, required := range m.requiredActions {
		if required && !m.fulfilledActions[a] {
			return fmt.Errorf("action %v was required but never fulfilled: %w", a, core.ErrUnfulfilledAction.Error())
		}
	}
	return nil
}

// AddComputedTime mirrors BaseCouplingScheme.AddComputedTime.
func (m *MultiCoupling) AddComputedTime(dt float64) error {
	m.computedTimeWindowPart += dt
	m.time += dt
	if m.HasTimeWindowSize() {
		remaining := m.GetThisTimeWindowRemainder()
		if remaining < -m.eps {
			return fmt.Errorf("computed time %v exceeds the time window size by more than eps: %w", m.computedTimeWindowPart, core.ErrInvalidArgument.Error())
		}
	}
	return nil
}

func (m *MultiCoupling) reachedEndOfTimeWindow() bool {
	return !m.HasTimeWindowSize() || math.Abs(m.GetThisTimeWindowRemainder()) < m.eps
}

// IsCouplingOngoing implements CouplingScheme.
func (m *MultiCoupling) IsCouplingOngoing() bool { return m.isCouplingOngoingLocked() }

func (m *MultiCoupling) isCouplingOngoingLocked() bool {
	timeLeft := m.maxTime == UndefinedMaxTime || m.maxTime-m.time > m.eps
	windowsLeft := m.maxTimeWindows == UndefinedMaxTimeWindows || m.maxTimeWindows >= m.timeWindows
	return timeLeft && windowsLeft
}

// IsTimeWindowComplete implements CouplingScheme.
func (m *MultiCoupling) IsTimeWindowComplete() bool { return m.isTimeWindowComplete }

// HasDataBeenReceived implements CouplingScheme.
func (m *MultiCoupling) HasDataBeenReceived() bool { return m.hasDataBeenReceived }

// HasTimeWindowSize implements CouplingScheme.
func (m *MultiCoupling) HasTimeWindowSize() bool {
	return math.Abs(m.timeWindowSize-UndefinedTimeWindowSize) > 1e-15
}

// GetTimeWindowSize implements CouplingScheme.
func (m *MultiCoupling) GetTimeWindowSize() float64 { return m.timeWindowSize }

// GetTime implements CouplingScheme.
func (m *MultiCoupling) GetTime() float64 { return m.time }

// GetTimeWindows implements CouplingScheme.
func (m *MultiCoupling) GetTimeWindows() int { return m.timeWindows }

// GetThisTimeWindowRemainder implements CouplingScheme.
func (m *MultiCoupling) GetThisTimeWindowRemainder() float64 {
	if !m.HasTimeWindowSize() {
		return 0
	}
	return m.timeWindowSize - m.computedTimeWindowPart
}

// GetNextTimestepMaxLength implements CouplingScheme.
func (m *MultiCoupling) GetNextTimestepMaxLength() float64 {
	if !m.HasTimeWindowSize() {
		return math.MaxFloat64
	}
	return m.GetThisTimeWindowRemainder()
}

// IsActionRequired implements CouplingScheme.
func (m *MultiCoupling) IsActionRequired(a core.Action) bool {
	return m.requiredActions[a] && !m.fulfilledActions[a]
}

// MarkActionFulfilled implements CouplingScheme.
func (m *MultiCoupling) MarkActionFulfilled(a core.Action) { m.fulfilledActions[a] = true }

// RequireAction implements CouplingScheme.
func (m *MultiCoupling) RequireAction(a core.Action) {
	m.requiredActions[a] = true
	m.fulfilledActions[a] = false
}

var _ CouplingScheme = (*MultiCoupling)(nil)
