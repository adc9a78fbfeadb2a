package cplscheme

import (
	"fmt"
	"os"
	"strings"

	log "github.com/golang/glog"

	"github.com/opencoupler/core/internal/acceleration"
)

// iterationLog writes precice-<participant>-iterations.log: one row per time window with TimeWindow/TotalIterations/
// Iterations/Convergence, plus QNColumns/DeletedQNColumns/DroppedQNColumns
// when an accelerator is attached. Only the primary rank of a participant
// writes; since this core does not model intra-participant ranks beyond
// rank 0, every instance writes.
type iterationLog struct {
	f *os.File
	hasAccel bool
	wroteHead bool
}

func newIterationLog(participant string, implicit, hasAccel bool) *iterationLog {
	name := fmt.Sprintf("precice-%s-iterations.log", participant)
	f, err := os.Create(name)
	if err != nil {
		log.Warningf("cplscheme: could not open %s: %v", name, err)
		return &iterationLog{hasAccel: hasAccel}
	}
	return &iterationLog{f: f, hasAccel: hasAccel}
}

func (l *iterationLog) write(timeWindow, totalIterations, iterations int, converged bool, accel acceleration.Acceleration) {
	if l.f == nil {
		return
	}
	if !l.wroteHead {
		cols := []string{"TimeWindow", "TotalIterations", "Iterations", "Convergence"}
		if l.hasAccel {
			cols = append(cols, "QNColumns", "DeletedQNColumns", "DroppedQNColumns")
		}
		fmt.Fprintln(l.f, strings.Join(cols, "\t"))
		l.wroteHead = true
	}
	convergedInt := 0
	if converged {
		convergedInt = 1
	}
	fields := []string{fmt.Sprint(timeWindow), fmt.Sprint(totalIterations), fmt.Sprint(iterations), fmt.Sprint(convergedInt)}
	if l.hasAccel && accel != nil {
		fields = append(fields, fmt.Sprint(accel.GetLSSystemCols()), fmt.Sprint(accel.GetDeletedColumns()), fmt.Sprint(accel.GetDroppedColumns()))
	}
	fmt.Fprintln(l.f, strings.Join(fields, "\t"))
}

// convergenceLog writes precice-<participant>-convergence.log: one row per
// iteration with TimeWindow/Iteration plus one Res<abbrev>(dataName) column
// per logging convergence measure.
type convergenceLog struct {
	f *os.File
	measures []convergenceMeasureContext
	wroteHead bool
}

func newConvergenceLog(participant string, measures []convergenceMeasureContext) *convergenceLog {
	name := fmt.Sprintf("precice-%s-convergence.log", participant)
	f, err := os.Create(name)
	if err != nil {
		log.Warningf("cplscheme: could not open %s: %v", name, err)
		return &convergenceLog{measures: measures}
	}
	return &convergenceLog{f: f, measures: measures}
}

func (l *convergenceLog) write(timeWindow, iteration int, measures []convergenceMeasureContext) {
	if l.f == nil {
		return
	}
	if !l.wroteHead {
		cols := []string{"TimeWindow", "Iteration"}
		for _, m := range measures {
			if m.doesLogging {
				abbrev := ""
				switch m.measure.(type) {
				case *AbsoluteConvergenceMeasure:
					abbrev = "Abs"
				case *RelativeConvergenceMeasure:
					abbrev = "Rel"
				}
				cols = append(cols, fmt.Sprintf("Res%s(%s)", abbrev, m.dataName))
			}
		}
		fmt.Fprintln(l.f, strings.Join(cols, "\t"))
		l.wroteHead = true
	}
	fields := []string{fmt.Sprint(timeWindow), fmt.Sprint(iteration)}
	for _, m := range measures {
		if m.doesLogging {
			fields = append(fields, fmt.Sprintf("%g", m.measure.NormResidual()))
		}
	}
	fmt.Fprintln(l.f, strings.Join(fields, "\t"))
}
