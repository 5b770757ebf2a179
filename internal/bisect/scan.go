package bisect

import (
	"fmt"

	"github.com/tcbisect/tcbisect"
)

// NightlyProbe probes the nightly published on d. notFound reports that
// the installer could not find an artifact for that day at all (a missing
// nightly, distinct from any other Unknown cause).
type NightlyProbe func(d tcbisect.Date) (v Verdict, notFound bool, err error)

// ScanConfig configures the coarse backward scan.
type ScanConfig struct {
	// StartDate is where the scan begins, walking backward: the
	// effective left bound (explicit --start) if pinned, otherwise the
	// effective right bound.
	StartDate Date
	// Pinned is true when StartDate came from an explicit user --start,
	// in which case a Yes there or a missing artifact there is an error
	// rather than something to route around.
	Pinned bool
	Probe  NightlyProbe
}

type Date = tcbisect.Date

// ScanResult is the outcome of a successful coarse scan.
type ScanResult struct {
	FirstSuccess Date
	LastFailure  Date
}

// PinnedStartRegressesError is returned when the user's explicit --start
// bound already reproduces the regression.
type PinnedStartRegressesError struct{ Date Date }

func (e *PinnedStartRegressesError) Error() string {
	return fmt.Sprintf("the start of the range (%s) must not reproduce the regression", e.Date)
}

// PinnedStartMissingError is returned when the user's explicit --start
// bound has no available nightly artifact.
type PinnedStartMissingError struct{ Date Date }

func (e *PinnedStartMissingError) Error() string {
	return fmt.Sprintf("could not find a nightly for %s", e.Date)
}

// NoBuildableNightlyError is returned when the scan walked all the way back
// to the stdlib cutover without finding a single passing nightly.
type NoBuildableNightlyError struct{}

func (e *NoBuildableNightlyError) Error() string { return "could not find a nightly that built" }

// ScanNightlies walks dates backward from cfg.StartDate with a
// stride that grows the further back the scan travels, until it finds a
// nightly that does not reproduce the regression (FirstSuccess) or falls
// off the front of the retained nightly archive.
func ScanNightlies(cfg ScanConfig) (ScanResult, error) {
	current := cfg.StartDate
	lastFailure := cfg.StartDate

	for current.After(tcbisect.StdlibCutover) {
		v, notFound, err := cfg.Probe(current)
		if err != nil {
			return ScanResult{}, err
		}
		switch {
		case notFound:
			if cfg.Pinned {
				return ScanResult{}, &PinnedStartMissingError{Date: current}
			}
			current = current.Pred()
		case v == No:
			return ScanResult{FirstSuccess: current, LastFailure: lastFailure}, nil
		case v == Unknown:
			// Any Unknown other than a missing artifact (a failed run, a
			// non-404 install error) ends the scan with an error.
			return ScanResult{}, fmt.Errorf("could not probe the nightly for %s", current)
		default: // Yes
			if cfg.Pinned {
				return ScanResult{}, &PinnedStartRegressesError{Date: current}
			}
			lastFailure = current
			d := cfg.StartDate.DaysSince(current)
			current = current.AddDays(-strideDays(d))
		}
	}
	return ScanResult{}, &NoBuildableNightlyError{}
}

// strideDays implements the scan's stride schedule, keyed on the distance
// already traveled from the scan's starting date.
func strideDays(d int) int {
	switch {
	case d < 7:
		return 2
	case d < 49:
		return 7
	default:
		return 14
	}
}
