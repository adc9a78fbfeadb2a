package cplscheme

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opencoupler/core/internal/acceleration"
	"github.com/opencoupler/core/internal/comm"
	"github.com/opencoupler/core/internal/core"
)

// windowMetric counts completed/repeated time windows across every scheme
// in the process, labelled by participant and outcome ("converged" for a
// completed window, "repeated" for a rejected sub-iteration). Registered
// once at package init: multiple schemes (e.g. one per participant in a
// single test binary) must share one collector registration.
var windowMetric = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cplscheme_time_windows_total"}, []string{"participant", "outcome"})

// UndefinedTimeWindowSize marks a time window size not yet known, either
// because it hasn't been configured or because it is still awaiting
// first-participant announcement.
const UndefinedTimeWindowSize = -1.0

// UndefinedMaxTime marks an unbounded simulation.
const UndefinedMaxTime = -1.0

// UndefinedMaxTimeWindows marks an unbounded window count.
const UndefinedMaxTimeWindows = -1

// CouplingScheme is the common contract every variant satisfies.
type CouplingScheme interface {
	Initialize(startTime float64, startWindow int) error
	ReceiveResultOfFirstAdvance() error
	FirstSynchronization() error
	FirstExchange() error
	SecondSynchronization() error
	SecondExchange() error
	Finalize() error

	IsCouplingOngoing() bool
	IsTimeWindowComplete() bool
	HasDataBeenReceived() bool
	HasTimeWindowSize() bool
	GetTimeWindowSize() float64
	GetTime() float64
	GetTimeWindows() int
	GetThisTimeWindowRemainder() float64
	GetNextTimestepMaxLength() float64

	IsActionRequired(a core.Action) bool
	MarkActionFulfilled(a core.Action)
	RequireAction(a core.Action)
}

// ExchangeData binds one <exchange> declaration to its wire transport: the
// coupling data, the mesh it lives on, the per-vertex dimensionality, and
// whether it must be exchanged once before the first advance.
type ExchangeData struct {
	Data *acceleration.CouplingData
	Name string
	MeshID core.MeshID
	Dim int
	Initialize bool
	// IsGlobal marks a <global-data> exchange, which has no associated mesh
	// and is sent/received via SendGlobalBuffer/ReceiveGlobalBuffer instead
	// of SendMeshBuffer/ReceiveMeshBuffer.
	IsGlobal bool
}

// BaseCouplingScheme implements the shared time/window/iteration/action
// bookkeeping every variant needs: time-window accounting, required-action
// tracking, and (for implicit variants) the fixed-point iteration algorithm
// live here; SerialExplicit, SerialImplicit, ParallelExplicit and
// ParallelImplicit only supply the send/receive ordering in
// exchangeFirst/exchangeSecond.
type BaseCouplingScheme struct {
	localParticipant string
	firstParticipant string
	secondParticipant string
	doesFirstStep bool

	communication comm.Communication
	primary comm.PrimaryChannel

	maxTime float64
	maxTimeWindows int
	timeWindowSize float64
	eps float64

	time float64
	timeWindows int
	computedTimeWindowPart float64
	isTimeWindowComplete bool
	hasDataBeenReceived bool
	isInitialized bool

	participantSetsTimeWindowSize bool
	participantReceivesTimeWindowSize bool

	implicit bool
	maxIterations int
	iterations int
	totalIterations int

	extrapolationOrder int

	sendDataExchanges []*ExchangeData
	receiveDataExchanges []*ExchangeData
	allData map[core.DataID]*acceleration.CouplingData

	convergenceMeasures []convergenceMeasureContext
	accel acceleration.Acceleration

	requiredActions map[core.Action]bool
	fulfilledActions map[core.Action]bool

	iterLog *iterationLog
	convLog *convergenceLog
	checkpoints *checkpointStore

	// exchangeFirst/exchangeSecond run this variant's send/receive ordering
	// for the first and second half of a time step respectively, returning
	// the convergence verdict of an implicit step (always true for
	// explicit variants).
	exchangeFirst func(b *BaseCouplingScheme) error
	exchangeSecond func(b *BaseCouplingScheme) (bool, error)
	receiveFirstAdvance func(b *BaseCouplingScheme) error
}

// BaseConfig groups BaseCouplingScheme's construction parameters so each
// variant constructor only names what differs.
type BaseConfig struct {
	LocalParticipant string
	FirstParticipant string
	SecondParticipant string
	Communication comm.Communication
	MaxTime float64
	MaxTimeWindows int
	TimeWindowSize float64
	ValidDigits int
	Implicit bool
	MaxIterations int
	ExtrapolationOrder int
	FirstParticipantSetsWindowSize bool
	// CheckpointPath, when non-empty, opens a boltdb file recording the
	// time window/simulation time reached at every write-checkpoint
	// action, for inspection after a restart. Leave empty to disable.
	CheckpointPath string
}

func newBaseCouplingScheme(cfg BaseConfig) (*BaseCouplingScheme, error) {
	if cfg.ValidDigits <= 0 {
		cfg.ValidDigits = core.DefaultValidDigits
	}
	if cfg.ExtrapolationOrder < 0 || cfg.ExtrapolationOrder > core.MaxExtrapolationOrder {
		return nil, fmt.Errorf("extrapolation order %d not supported: %w", cfg.ExtrapolationOrder, core.ErrInvalidArgument.Error())
	}
	doesFirstStep := cfg.LocalParticipant == cfg.FirstParticipant
	b := &BaseCouplingScheme{
		localParticipant: cfg.LocalParticipant,
		firstParticipant: cfg.FirstParticipant,
		secondParticipant: cfg.SecondParticipant,
		doesFirstStep: doesFirstStep,
		communication: cfg.Communication,
		primary: cfg.Communication.Primary(),
		maxTime: cfg.MaxTime,
		maxTimeWindows: cfg.MaxTimeWindows,
		timeWindowSize: cfg.TimeWindowSize,
		eps: math.Pow(10, float64(-cfg.ValidDigits)),
		implicit: cfg.Implicit,
		maxIterations: cfg.MaxIterations,
		iterations: 1,
		totalIterations: 1,
		extrapolationOrder: cfg.ExtrapolationOrder,
		allData: make(map[core.DataID]*acceleration.CouplingData),
		requiredActions: make(map[core.Action]bool),
		fulfilledActions: make(map[core.Action]bool),
	}
	if cfg.FirstParticipantSetsWindowSize {
		if doesFirstStep {
			b.timeWindowSize = UndefinedTimeWindowSize
			b.participantSetsTimeWindowSize = true
		} else {
			b.participantReceivesTimeWindowSize = true
		}
	}
	if cfg.CheckpointPath != "" {
		b.checkpoints = openCheckpointStore(cfg.CheckpointPath)
	}
	return b, nil
}

// AddExchange registers one <exchange> in the direction implied by send (a
// solver-local send if true, a receive if false), attaching ex.Data to the
// shared allData table.
func (b *BaseCouplingScheme) AddExchange(ex *ExchangeData, send bool) {
	if _, ok := b.allData[ex.Data.DataID]; !ok {
		b.allData[ex.Data.DataID] = ex.Data
	}
	if send {
		b.sendDataExchanges = append(b.sendDataExchanges, ex)
	} else {
		b.receiveDataExchanges = append(b.receiveDataExchanges, ex)
	}
}

// AddConvergenceMeasure registers a <convergence-measure> against data for
// an implicit scheme.
func (b *BaseCouplingScheme) AddConvergenceMeasure(data *acceleration.CouplingData, name string, measure ConvergenceMeasure, suffices, strict, logging bool) {
	b.convergenceMeasures = append(b.convergenceMeasures, convergenceMeasureContext{
		data: data, dataName: name, measure: measure, suffices: suffices, strict: strict, doesLogging: logging,
	})
}

// SetAcceleration attaches a fixed-point accelerator.
func (b *BaseCouplingScheme) SetAcceleration(a acceleration.Acceleration) {
	b.accel = a
}

// Initialize implements CouplingScheme.
func (b *BaseCouplingScheme) Initialize(startTime float64, startWindow int) error {
	b.time = startTime
	b.timeWindows = startWindow
	if b.implicit && len(b.convergenceMeasures) == 0 && !b.doesFirstStep {
		return fmt.Errorf("implicit coupling scheme requires at least one convergence measure: %w", core.ErrConfigSemantics.Error())
	}
	for _, ex := range b.sendDataExchanges {
		if ex.Data.RequiresInitialization() {
			b.RequireAction(core.ActionInitializeData)
		}
	}
	b.iterLog = newIterationLog(b.localParticipant, !b.doesFirstStep, b.accel != nil)
	if !b.doesFirstStep {
		b.convLog = newConvergenceLog(b.localParticipant, b.convergenceMeasures)
	}
	b.isInitialized = true
	log.Infof("cplscheme %q: initialized at t=%v, window=%d (first=%v, implicit=%v)", b.localParticipant, startTime, startWindow, b.doesFirstStep, b.implicit)
	return nil
}

// ReceiveResultOfFirstAdvance implements CouplingScheme: the second
// participant receives the first participant's initial send before its own
// first advance.
func (b *BaseCouplingScheme) ReceiveResultOfFirstAdvance() error {
	if b.receiveFirstAdvance != nil {
		return b.receiveFirstAdvance(b)
	}
	return serialReceiveFirstAdvance(b)
}

// serialReceiveFirstAdvance is the default: only the second participant receives anything, since the
// first hasn't sent until its own first advance.
func serialReceiveFirstAdvance(b *BaseCouplingScheme) error {
	if b.doesFirstStep {
		return nil
	}
	if err := b.receiveTimeWindowSize(); err != nil {
		return err
	}
	if err := b.receiveData(b.receiveDataExchanges); err != nil {
		return err
	}
	b.hasDataBeenReceived = true
	return nil
}

// FirstSynchronization runs the variant's pre-exchange synchronization step.
// Neither serial nor parallel schemes need one beyond what Initialize/
// ReceiveResultOfFirstAdvance already did; variants override by replacing
// exchangeFirst if their protocol needs it.
func (b *BaseCouplingScheme) FirstSynchronization() error { return nil }

// FirstExchange implements CouplingScheme by delegating to the variant's
// exchangeFirst strategy.
func (b *BaseCouplingScheme) FirstExchange() error {
	if b.exchangeFirst == nil {
		return nil
	}
	return b.exchangeFirst(b)
}

// SecondSynchronization implements CouplingScheme; unused by the variants
// implemented here.
func (b *BaseCouplingScheme) SecondSynchronization() error { return nil }

// SecondExchange implements CouplingScheme by delegating to the variant's
// exchangeSecond strategy. For implicit schemes, exchangeSecond itself runs
// the implicit-step algorithm (via doImplicitStep) as part of its
// send/receive ordering, since the point in the protocol at which
// convergence is measured, broadcast, or received differs by variant.
func (b *BaseCouplingScheme) SecondExchange() error {
	b.hasDataBeenReceived = false
	b.isTimeWindowComplete = false
	if !b.reachedEndOfTimeWindow() {
		return nil
	}

	converged := true
	var err error
	if b.exchangeSecond != nil {
		converged, err = b.exchangeSecond(b)
		if err != nil {
			return err
		}
	}

	b.timeWindows++
	if converged {
		b.isTimeWindowComplete = true
		b.computedTimeWindowPart = 0
		if b.isCouplingOngoingLocked() {
			b.RequireAction(core.ActionWriteCheckpoint)
		}
		if b.iterLog != nil {
			b.iterLog.write(b.timeWindows-1, b.totalIterations, b.iterations, true, b.accel)
		}
		windowMetric.WithLabelValues(b.localParticipant, "converged").Inc()
		if b.checkpoints != nil {
			b.checkpoints.record(b.localParticipant, b.timeWindows, b.time)
		}
		b.iterations = 1
	} else {
		b.timeWindows--
		b.time -= b.computedTimeWindowPart
		b.computedTimeWindowPart = 0
		b.RequireAction(core.ActionReadCheckpoint)
		windowMetric.WithLabelValues(b.localParticipant, "repeated").Inc()
		b.iterations++
		b.totalIterations++
	}
	return nil
}

// doImplicitStep runs one fixed-point iteration step: store extrapolation
// history, measure (or accept a peer-supplied) convergence verdict, apply
// acceleration on non-convergence, and advance the iteration counters.
// known, when non-nil, is a verdict already measured by the peer and
// received over the wire: the local side applies it without re-measuring.
// When known is nil, the local side measures convergence itself from its
// registered convergence measures.
func (b *BaseCouplingScheme) doImplicitStep(known *bool) (bool, error) {
	for _, d := range b.allData {
		d.StoreExtrapolationData()
	}

	hasConverged := true
	if known != nil {
		hasConverged = *known
	} else if len(b.convergenceMeasures) > 0 {
		var err error
		hasConverged, err = measureConvergence(b.convergenceMeasures, b.iterations, b.maxIterations)
		if err != nil {
			return false, err
		}
		if b.convLog != nil {
			b.convLog.write(b.timeWindows-1, b.iterations, b.convergenceMeasures)
		}
	}
	if b.maxIterations > 0 && b.iterations == b.maxIterations {
		hasConverged = true
	}

	accelData := acceleration.DataMap(b.allData)
	if hasConverged {
		if b.accel != nil {
			if err := b.accel.IterationsConverged(accelData); err != nil {
				return false, err
			}
		}
		for _, d := range b.allData {
			d.MoveToNextWindow()
		}
	} else {
		if b.accel != nil {
			if err := b.accel.PerformAcceleration(accelData); err != nil {
				return false, err
			}
		}
	}
	for _, d := range b.allData {
		d.StoreIteration()
	}
	return hasConverged, nil
}

// Finalize implements CouplingScheme.
func (b *BaseCouplingScheme) Finalize() error {
	if !b.isInitialized {
		return fmt.Errorf("finalize called before initialize: %w", core.ErrWrongState.Error())
	}
	if b.checkpoints != nil {
		if err := b.checkpoints.Close(); err != nil {
			log.Warningf("cplscheme %q: closing checkpoint store: %v", b.localParticipant, err)
		}
	}
	return b.checkCompletenessRequiredActions()
}

// AddComputedTime implements the time-window accounting of // ("addComputedTime(dt) accumulates a _computedTimeWindowPart").
func (b *BaseCouplingScheme) AddComputedTime(dt float64) error {
	b.computedTimeWindowPart += dt
	b.time += dt
	if b.HasTimeWindowSize() {
		remaining := b.GetThisTimeWindowRemainder()
		if remaining < -b.eps {
			return fmt.Errorf("computed time %v exceeds the time window size by more than eps: %w", b.computedTimeWindowPart, core.ErrInvalidArgument.Error())
		}
	}
	return nil
}

func (b *BaseCouplingScheme) reachedEndOfTimeWindow() bool {
	return !b.HasTimeWindowSize() || math.Abs(b.GetThisTimeWindowRemainder()) < b.eps
}

// IsCouplingOngoing implements CouplingScheme.
func (b *BaseCouplingScheme) IsCouplingOngoing() bool { return b.isCouplingOngoingLocked() }

func (b *BaseCouplingScheme) isCouplingOngoingLocked() bool {
	timeLeft := b.maxTime == UndefinedMaxTime || b.maxTime-b.time > b.eps
	windowsLeft := b.maxTimeWindows == UndefinedMaxTimeWindows || b.maxTimeWindows >= b.timeWindows
	return timeLeft && windowsLeft
}

// IsTimeWindowComplete implements CouplingScheme.
func (b *BaseCouplingScheme) IsTimeWindowComplete() bool { return b.isTimeWindowComplete }

// HasDataBeenReceived implements CouplingScheme.
func (b *BaseCouplingScheme) HasDataBeenReceived() bool { return b.hasDataBeenReceived }

// HasTimeWindowSize implements CouplingScheme.
func (b *BaseCouplingScheme) HasTimeWindowSize() bool {
	return math.Abs(b.timeWindowSize-UndefinedTimeWindowSize) > 1e-15
}

// GetTimeWindowSize implements CouplingScheme.
func (b *BaseCouplingScheme) GetTimeWindowSize() float64 { return b.timeWindowSize }

// SetTimeWindowSize sets the window size; rejected for a participant that
// receives it over the wire instead.
func (b *BaseCouplingScheme) SetTimeWindowSize(size float64) error {
	if b.participantSetsTimeWindowSize {
		return fmt.Errorf("local participant announces the time window size, it may not also set it: %w", core.ErrInvalidState.Error())
	}
	b.timeWindowSize = size
	return nil
}

// GetTime implements CouplingScheme.
func (b *BaseCouplingScheme) GetTime() float64 { return b.time }

// GetTimeWindows implements CouplingScheme.
func (b *BaseCouplingScheme) GetTimeWindows() int { return b.timeWindows }

// GetThisTimeWindowRemainder implements CouplingScheme.
func (b *BaseCouplingScheme) GetThisTimeWindowRemainder() float64 {
	if !b.HasTimeWindowSize() {
		return 0
	}
	return b.timeWindowSize - b.computedTimeWindowPart
}

// GetNextTimestepMaxLength implements CouplingScheme.
func (b *BaseCouplingScheme) GetNextTimestepMaxLength() float64 {
	if !b.HasTimeWindowSize() {
		return math.MaxFloat64
	}
	return b.GetThisTimeWindowRemainder()
}

// IsActionRequired implements CouplingScheme.
func (b *BaseCouplingScheme) IsActionRequired(a core.Action) bool {
	return b.requiredActions[a] && !b.fulfilledActions[a]
}

// MarkActionFulfilled implements CouplingScheme.
func (b *BaseCouplingScheme) MarkActionFulfilled(a core.Action) {
	b.fulfilledActions[a] = true
}

// RequireAction implements CouplingScheme.
func (b *BaseCouplingScheme) RequireAction(a core.Action) {
	b.requiredActions[a] = true
	b.fulfilledActions[a] = false
}

func (b *BaseCouplingScheme) checkCompletenessRequiredActions() error {
	for a, required := range b.requiredActions {
		if required && !b.fulfilledActions[a] {
			return fmt.Errorf("action %v was required but never fulfilled: %w", a, core.ErrUnfulfilledAction.Error())
		}
	}
	return nil
}

func (b *BaseCouplingScheme) sendTimeWindowSize() error {
	if b.participantSetsTimeWindowSize {
		return b.primary.SendScalar(b.computedTimeWindowPart)
	}
	return nil
}

func (b *BaseCouplingScheme) receiveTimeWindowSize() error {
	if !b.participantReceivesTimeWindowSize {
		return nil
	}
	dt, err := b.primary.ReceiveScalar()
	if err != nil {
		return err
	}
	return b.SetTimeWindowSize(dt)
}

// sendData writes every entry of exchanges to its configured distributed
// channel.
func (b *BaseCouplingScheme) sendData(exchanges []*ExchangeData) error {
	return sendExchanges(b.communication, exchanges)
}

// receiveData reads every entry of exchanges from its configured
// distributed channel and stores the result into the coupling data buffer.
func (b *BaseCouplingScheme) receiveData(exchanges []*ExchangeData) error {
	return receiveExchanges(b.communication, exchanges)
}

// sendExchanges and receiveExchanges are the free-function forms of
// sendData/receiveData, used directly by MultiCoupling which talks to
// several peer Communications rather than the single one a bilateral
// scheme holds.
func sendExchanges(c comm.Communication, exchanges []*ExchangeData) error {
	for _, ex := range exchanges {
		dc, err := c.Distributed(ex.MeshID)
		if err != nil {
			return err
		}
		if ex.IsGlobal {
			err = dc.SendGlobalBuffer(ex.Dim, ex.Data.Values())
		} else {
			err = dc.SendMeshBuffer(ex.MeshID, ex.Dim, ex.Data.Values())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func receiveExchanges(c comm.Communication, exchanges []*ExchangeData) error {
	for _, ex := range exchanges {
		dc, err := c.Distributed(ex.MeshID)
		if err != nil {
			return err
		}
		var values []float64
		if ex.IsGlobal {
			values, err = dc.ReceiveGlobalBuffer(ex.Dim)
		} else {
			values, err = dc.ReceiveMeshBuffer(ex.MeshID, ex.Dim)
		}
		if err != nil {
			return err
		}
		ex.Data.SetValues(values)
	}
	return nil
}

// sendConvergence sends the convergence verdict (implicit schemes only) as
// a single bool on the primary channel; the sender is always the
// participant running the convergence measure.
func (b *BaseCouplingScheme) sendConvergence(v bool) error {
	return b.primary.SendBool(v)
}

func (b *BaseCouplingScheme) receiveConvergence() (bool, error) {
	return b.primary.ReceiveBool()
}
