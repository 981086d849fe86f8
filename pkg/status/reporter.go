package status

import "github.com/Veraticus/idlewatch/pkg/interfaces"

// Reporter adapts the Indicator to implement interfaces.StatusReporter
type Reporter struct {
	indicator *Indicator
}

// NewReporter creates a new status reporter
func NewReporter(indicator *Indicator) *Reporter {
	return &Reporter{
		indicator: indicator,
	}
}

// Ensure Reporter implements StatusReporter
var _ interfaces.StatusReporter = (*Reporter)(nil)

// ReportPhase reports a sensor lifecycle change
func (r *Reporter) ReportPhase(phase string) {
	if r.indicator != nil {
		r.indicator.SetPhase(phase)
	}
}
