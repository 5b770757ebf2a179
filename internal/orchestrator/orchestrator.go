// Package orchestrator implements the two-phase bisection state machine:
// validate endpoints, run the nightly coarse bisect, derive a one-day
// commit window, run the CI bisect within it.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tcbisect/tcbisect"
	"github.com/tcbisect/tcbisect/internal/bisect"
	"github.com/tcbisect/tcbisect/internal/probe"
	"github.com/tcbisect/tcbisect/internal/repoaccess"
)

// DefaultBranchRef names the upstream default branch tip when no --end
// commit is given.
const DefaultBranchRef = "HEAD"

// ManifestResolver is satisfied by internal/manifest.Resolver.
type ManifestResolver interface {
	Resolve(ctx context.Context, d tcbisect.Date) (string, error)
}

// Installer is the subset of the concrete installer the orchestrator
// queries directly (beyond what it hands to internal/probe).
type Installer interface {
	probe.Installer
	DefaultNightly(ctx context.Context) (tcbisect.Date, bool)
}

// Config is everything the orchestrator needs to run one bisection. The
// probe itself (installer, runner, classifier mode, preserve policy) is
// assembled separately into the *probe.Prober passed to Run, since it is
// shared between the nightly and CI phases unchanged.
type Config struct {
	Host       string
	Target     string
	Start, End *tcbisect.Bound
	ByCommit   bool
	Alt        bool

	Access    repoaccess.Accessor
	Manifest  ManifestResolver
	Installer Installer
	Log       func(format string, args ...interface{})
}

func (c *Config) logf(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log(format, args...)
	}
}

// targets splits the comma-separated Target list; NewToolchain adds Host.
func (c *Config) targets() []string {
	if c.Target == "" {
		return nil
	}
	return strings.Split(c.Target, ",")
}

// PhaseResult is one phase's bisection output.
type PhaseResult struct {
	Searched []tcbisect.Toolchain
	Found    int
	Warning  error // non-nil iff the bisector hit Unknown saturation
}

// Result is the full two-phase outcome. Nightly is nil for a
// CI-only bisection (both bounds already commits, or --by-commit).
type Result struct {
	Nightly *PhaseResult
	CI      PhaseResult
}

// PinnedEndDoesNotRegressError is raised when the user's explicit --end
// bound was checked and did not reproduce the regression.
type PinnedEndDoesNotRegressError struct{ Toolchain tcbisect.Toolchain }

func (e *PinnedEndDoesNotRegressError) Error() string {
	return fmt.Sprintf("the end of the range (%s) does not reproduce the regression", e.Toolchain)
}

// PinnedStartRegressesError mirrors bisect.PinnedStartRegressesError for
// the CI phase, where the pinned endpoint is a commit rather than a date.
type PinnedStartRegressesError struct{ Toolchain tcbisect.Toolchain }

func (e *PinnedStartRegressesError) Error() string {
	return fmt.Sprintf("the commit at the start of the range (%s) includes the regression", e.Toolchain)
}

// RetentionExhaustedError reports that no CI builds remain within the
// retention window between the requested endpoints.
type RetentionExhaustedError struct{ Start, End string }

func (e *RetentionExhaustedError) Error() string {
	return fmt.Sprintf("no CI builds available between %s and %s within the last %s", e.Start, e.End, tcbisect.RetentionWindow)
}

// EndpointMismatchError is error kind 6: the accessor's commit list did
// not end at the requested reference.
type EndpointMismatchError struct{ Want, Got string }

func (e *EndpointMismatchError) Error() string {
	return fmt.Sprintf("expected to end with %s, but ended with %s", e.Want, e.Got)
}

// NoRegressionFoundError is returned by the final-boundary re-probe: the
// bisector's boundary landed on the last element of the search sequence,
// meaning no later No ever contradicted it, and a fresh probe of that
// element failed to confirm the regression.
type NoRegressionFoundError struct{}

func (e *NoRegressionFoundError) Error() string { return "regression not found; expand bounds" }

// ExitError carries a specific process exit code for cmd/tcbisect to exit
// with, printing Err without the log prefix. Install-only mode returns one
// with Code 1 when the trailing command fails under the installed
// toolchain; the command's own exit status is not carried over.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// reprobeFinalBoundary re-checks a bisection result that landed on the
// last searched element, since that element was never explicitly
// contradicted by a later No and so might be a false boundary rather than
// a true one (the search range simply never contained a non-regressing
// build).
func reprobeFinalBoundary(ctx context.Context, pr *probe.Prober, toolchains []tcbisect.Toolchain, found int) error {
	if found != len(toolchains)-1 {
		return nil
	}
	if v := pr.Probe(ctx, toolchains[found]); v != bisect.Yes {
		return &NoRegressionFoundError{}
	}
	return nil
}

// Run validates cfg's bounds, upgrades tag bounds to dates opportunistically,
// and dispatches to a CI-only or two-phase bisection.
func Run(ctx context.Context, cfg *Config, pr *probe.Prober) (*Result, error) {
	resolver := &repoaccess.Resolver{Manifest: cfg.Manifest, Accessor: cfg.Access}
	if err := resolver.UpgradeBounds(ctx, cfg.Start, cfg.End); err != nil {
		return nil, err
	}

	if err := tcbisect.CheckBounds(cfg.Start, cfg.End); err != nil {
		return nil, err
	}
	if err := checkMixedBounds(cfg.Start, cfg.End); err != nil {
		return nil, err
	}

	ciOnly := cfg.ByCommit
	if cfg.Start != nil && cfg.Start.Kind == tcbisect.BoundCommit && !tcbisect.IsTagLike(*cfg.Start) {
		ciOnly = true
	}
	if cfg.End != nil && cfg.End.Kind == tcbisect.BoundCommit && !tcbisect.IsTagLike(*cfg.End) {
		ciOnly = true
	}

	if ciOnly {
		ciResult, err := runCI(ctx, cfg, pr, resolver, startCommit(cfg), endCommit(cfg))
		if err != nil {
			return nil, err
		}
		return &Result{CI: *ciResult}, nil
	}

	nightlyResult, err := runNightly(ctx, cfg, pr)
	if err != nil {
		return nil, err
	}

	regressed := nightlyResult.Searched[nightlyResult.Found]
	prevDate := regressed.Spec.Date.Pred()

	workingCommit, err := resolver.CommitForDate(ctx, prevDate)
	if err != nil {
		return nil, err
	}
	badCommit, err := resolver.CommitForDate(ctx, regressed.Spec.Date)
	if err != nil {
		return nil, err
	}

	cfg.logf("looking for regression commit between %s and %s", prevDate, regressed.Spec.Date)
	ciResult, err := runCI(ctx, cfg, pr, resolver, workingCommit, badCommit)
	if err != nil {
		return nil, err
	}
	return &Result{Nightly: nightlyResult, CI: *ciResult}, nil
}

func startCommit(cfg *Config) string {
	if cfg.Start != nil && cfg.Start.Kind == tcbisect.BoundCommit {
		return cfg.Start.Commit
	}
	return tcbisect.EpochCommit
}

func endCommit(cfg *Config) string {
	if cfg.End != nil && cfg.End.Kind == tcbisect.BoundCommit {
		return cfg.End.Commit
	}
	return DefaultBranchRef
}

// checkMixedBounds rejects bound-kind combinations other than
// (date|absent, date|absent) and (commit|absent, commit|absent).
func checkMixedBounds(start, end *tcbisect.Bound) error {
	if start == nil || end == nil {
		return nil
	}
	if start.Kind != end.Kind {
		return &tcbisect.InvalidConfigError{Msg: fmt.Sprintf(
			"mismatched bound kinds: start=%s end=%s", start, end)}
	}
	return nil
}

func startDate(cfg *Config) tcbisect.Date {
	if cfg.Start != nil && cfg.Start.Kind == tcbisect.BoundDate {
		return cfg.Start.Date
	}
	return endDate(cfg)
}

func endDate(cfg *Config) tcbisect.Date {
	if cfg.End != nil && cfg.End.Kind == tcbisect.BoundDate {
		return cfg.End.Date
	}
	if d, ok := cfg.Installer.DefaultNightly(context.Background()); ok {
		return d
	}
	return tcbisect.Today()
}

func runNightly(ctx context.Context, cfg *Config, pr *probe.Prober) (*PhaseResult, error) {
	if cfg.Alt {
		return nil, &tcbisect.InvalidConfigError{Msg: "cannot bisect nightlies with --alt: not supported"}
	}

	pinned := cfg.Start != nil && cfg.Start.Kind == tcbisect.BoundDate
	scanResult, err := bisect.ScanNightlies(bisect.ScanConfig{
		StartDate: startDate(cfg),
		Pinned:    pinned,
		Probe: func(d tcbisect.Date) (bisect.Verdict, bool, error) {
			t := tcbisect.NewToolchain(tcbisect.NightlySpec(d), cfg.Host, cfg.targets()...)
			v, notFound := pr.ProbeScan(ctx, t)
			return v, notFound, nil
		},
	})
	if err != nil {
		return nil, err
	}

	// A pinned --start is validated, not scanned from: ScanNightlies
	// probes it once and returns, so its LastFailure is meaningless here.
	// The real end of the range is whatever endDate resolved to.
	last := scanResult.LastFailure
	if pinned {
		last = endDate(cfg)
	}
	toolchains := nightlyRange(cfg, scanResult.FirstSuccess, last)

	lastToolchain := toolchains[len(toolchains)-1]
	if v := pr.Probe(ctx, lastToolchain); v == bisect.No {
		return nil, &PinnedEndDoesNotRegressError{Toolchain: lastToolchain}
	}

	var warning error
	found, err := bisect.Find(len(toolchains), pr.Predicate(ctx, toolchains), func(remaining, estimate int) {
		cfg.logf("%d versions remaining to test after this (roughly %d steps)", remaining, estimate)
	})
	if err != nil {
		warning = err
	} else if err := reprobeFinalBoundary(ctx, pr, toolchains, found); err != nil {
		return nil, err
	}

	return &PhaseResult{Searched: toolchains, Found: found, Warning: warning}, nil
}

func nightlyRange(cfg *Config, start, end tcbisect.Date) []tcbisect.Toolchain {
	var out []tcbisect.Toolchain
	for d := start; !d.After(end); d = d.Succ() {
		out = append(out, tcbisect.NewToolchain(tcbisect.NightlySpec(d), cfg.Host, cfg.targets()...))
	}
	return out
}

func runCI(ctx context.Context, cfg *Config, pr *probe.Prober, resolver *repoaccess.Resolver, startRef, endRef string) (*PhaseResult, error) {
	endC, err := cfg.Access.Commit(ctx, endRef)
	if err != nil {
		return nil, err
	}
	commits, err := cfg.Access.Commits(ctx, startRef, endC.Hash)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("accessor returned an empty commit range %s..%s", startRef, endC.Hash)
	}
	if commits[len(commits)-1].Hash != endC.Hash {
		return nil, &EndpointMismatchError{Want: endC.Hash, Got: commits[len(commits)-1].Hash}
	}
	if !sort.SliceIsSorted(commits, func(i, j int) bool { return !commits[i].AuthoredDate.After(commits[j].AuthoredDate) }) {
		return nil, fmt.Errorf("accessor returned commits out of chronological order")
	}

	cutoff := tcbisect.Today().AddDays(-int(tcbisect.RetentionWindow / (24 * time.Hour)))
	var retained []tcbisect.Commit
	for _, c := range commits {
		if !c.AuthoredDate.Before(cutoff) {
			retained = append(retained, c)
		}
	}
	if len(retained) == 0 {
		return nil, &RetentionExhaustedError{Start: startRef, End: endRef}
	}

	toolchains := make([]tcbisect.Toolchain, len(retained))
	for i, c := range retained {
		toolchains[i] = tcbisect.NewToolchain(tcbisect.CISpec(c.Hash, cfg.Alt), cfg.Host, cfg.targets()...)
	}

	if v := pr.Probe(ctx, toolchains[0]); v == bisect.Yes {
		return nil, &PinnedStartRegressesError{Toolchain: toolchains[0]}
	}
	last := toolchains[len(toolchains)-1]
	if v := pr.Probe(ctx, last); v == bisect.No {
		return nil, &PinnedEndDoesNotRegressError{Toolchain: last}
	}

	var warning error
	found, err := bisect.Find(len(toolchains), pr.Predicate(ctx, toolchains), func(remaining, estimate int) {
		cfg.logf("%d versions remaining to test after this (roughly %d steps)", remaining, estimate)
	})
	if err != nil {
		warning = err
	} else if err := reprobeFinalBoundary(ctx, pr, toolchains, found); err != nil {
		return nil, err
	}

	return &PhaseResult{Searched: toolchains, Found: found, Warning: warning}, nil
}
