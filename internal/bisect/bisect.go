// Package bisect implements the ternary bisector (Find, an index-based
// search over a sequence) and the nightly coarse scanner that discovers its
// search bounds (ScanNightlies, configured by ScanConfig and returning a
// ScanResult).
package bisect

import (
	"fmt"
	"math/bits"
)

// Verdict is the ternary outcome of one probe.
type Verdict int

const (
	No Verdict = iota
	Yes
	Unknown
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "Yes"
	case No:
		return "No"
	default:
		return "Unknown"
	}
}

// Predicate probes index i of the sequence under bisection.
type Predicate func(i int) Verdict

// Progress is called immediately before every probe, including Unknown
// retries, with the remaining candidate count and an estimated number of
// remaining conclusive probes.
type Progress func(remaining, estimate int)

// AllUnknownWarning is returned (alongside a best-guess index) when every
// remaining candidate in the final search interval answered Unknown. It is
// a warning, not a hard failure: the interval midpoint is returned as a
// best guess rather than failing outright.
type AllUnknownWarning struct {
	Index int
}

func (w *AllUnknownWarning) Error() string {
	return fmt.Sprintf("all probes in the final interval were Unknown; guessing index %d", w.Index)
}

// Find returns the least index in [0,n) for which p is (or is assumed to
// be) Yes, given a predicate that is monotone modulo Unknown answers: there
// exists a true boundary k* such that p(i) is No for i<k* and Yes for
// i>=k* whenever every probe is conclusive.
//
// Unknown answers are tolerated: a candidate that answers Unknown gets one
// immediate retry (a probe failure may be transient) before Find moves on
// to the nearest untried index to the chosen midpoint (ties broken toward
// the right-hand neighbor). Find keeps doing this until it gets a
// conclusive answer or exhausts the interval, in which case it returns the
// interval's midpoint and an *AllUnknownWarning.
func Find(n int, p Predicate, progress Progress) (int, error) {
	if n <= 0 {
		panic("bisect: Find called with n <= 0")
	}
	if n == 1 {
		return 0, nil
	}
	lo, hi := 0, n
	for lo < hi {
		m := lo + (hi-lo)/2
		tried := map[int]bool{}
		for {
			remaining := hi - lo - 1
			estimate := ceilLog2(hi - lo)
			if progress != nil {
				progress(remaining, estimate)
			}
			cand, ok := nearestUntried(lo, hi, m, tried)
			if !ok {
				guess := lo + (hi-lo)/2
				return guess, &AllUnknownWarning{Index: guess}
			}
			v := p(cand)
			if v == Unknown {
				// At most one retry per Unknown (§8): give the same
				// candidate a second chance before counting it toward
				// saturation, since a single Unknown is often transient
				// (e.g. a flaky install) rather than a permanent gap.
				if progress != nil {
					progress(remaining, estimate)
				}
				v = p(cand)
			}
			if v == Unknown {
				tried[cand] = true
				continue
			}
			if v == Yes {
				hi = cand
			} else {
				lo = cand + 1
			}
			break
		}
	}
	if lo > n-1 {
		lo = n - 1
	}
	return lo, nil
}

// nearestUntried returns the untried index in [lo,hi) closest to m,
// preferring the right-hand neighbor on ties.
func nearestUntried(lo, hi, m int, tried map[int]bool) (int, bool) {
	for d := 0; ; d++ {
		right, left := m+d, m-d
		anyInRange := false
		if right < hi && right >= lo {
			anyInRange = true
			if !tried[right] {
				return right, true
			}
		}
		if left != right && left >= lo && left < hi {
			anyInRange = true
			if !tried[left] {
				return left, true
			}
		}
		if !anyInRange {
			return 0, false
		}
	}
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
