// Package tcbisect locates the earliest pre-built compiler toolchain that
// exhibits a regression, by bisecting first over daily nightly builds and
// then over per-commit CI builds between the two nightlies straddling the
// boundary.
package tcbisect

import "time"

// RetentionWindow is how long (167 days) upstream keeps CI build artifacts
// around. CI commits older than this cannot be bisected.
const RetentionWindow = 167 * 24 * time.Hour

// StdlibCutover is the earliest date nightly builds shipped a standard
// library archive; the coarse scanner never walks further back than this.
var StdlibCutover = Date{Year: 2015, Month: 10, Day: 20}

// EpochCommit is the oldest commit CI builds are retained for, used as the
// default left bound of a commit-only bisection.
const EpochCommit = "927c55d86b0be44337f37cf5b0a76fb8ba86e06c"
