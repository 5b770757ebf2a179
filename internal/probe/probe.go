// Package probe implements the predicate probe: install a toolchain, run
// the user's command under it, classify the result, and tear the
// toolchain back down on every path, success or failure.
package probe

import (
	"context"

	"github.com/tcbisect/tcbisect"
	"github.com/tcbisect/tcbisect/internal/bisect"
	"github.com/tcbisect/tcbisect/internal/classify"
	"github.com/tcbisect/tcbisect/internal/installer"
)

// Installer is the subset of the toolchain installer a probe needs.
// internal/installer.Installer satisfies this.
type Installer interface {
	// Install installs t, reporting whether it installed by symlink
	// (Linked) rather than by copy.
	Install(ctx context.Context, t tcbisect.Toolchain) (linked bool, err error)
	Remove(ctx context.Context, t tcbisect.Toolchain, linked bool) error
}

// Runner executes the user's test command under an installed toolchain
// and reports its exit status and captured stderr.
type Runner interface {
	Run(ctx context.Context, t tcbisect.Toolchain, command []string) (success bool, stderr string, err error)
}

// Prober composes an Installer, a Runner, and a classify.Mode into the
// single ternary bisect.Predicate the bisector and scanner drive.
type Prober struct {
	Installer Installer
	Runner    Runner
	Mode      classify.Mode
	Command   []string
	// Preserve keeps a successfully installed, non-linked toolchain on
	// disk after probing instead of removing it.
	Preserve bool
	// Log receives one line per probe outcome plus install, run and
	// remove failures; nil disables logging. Bisector progress reports go
	// to the orchestrator's own Config.Log, not here.
	Log func(format string, args ...interface{})
	// Ask, when set, replaces Mode.Outcome(success, stderr) entirely
	// rather than merely supplementing it. cmd/tcbisect sets it for
	// --timeout (WrapTimeout) and for --prompt (a manual verdict that
	// overrides any automated mode).
	Ask func(t tcbisect.Toolchain, success bool, stderr string) classify.Outcome
}

func (p *Prober) logf(format string, args ...interface{}) {
	if p.Log != nil {
		p.Log(format, args...)
	}
}

// Probe installs t, runs the command, classifies the result, and removes
// t, returning Unknown on any install or run failure rather than
// propagating the error — the bisector and scanner are responsible for
// deciding what an Unknown means in their context.
func (p *Prober) Probe(ctx context.Context, t tcbisect.Toolchain) bisect.Verdict {
	v, _ := p.probe(ctx, t)
	return v
}

// ProbeScan is Probe plus whether an install failure was specifically a
// missing artifact (no nightly published for that day) rather than some
// other install or run failure, the signal bisect.ScanNightlies needs to
// roll back a day instead of treating the day as a regression.
func (p *Prober) ProbeScan(ctx context.Context, t tcbisect.Toolchain) (v bisect.Verdict, notFound bool) {
	return p.probe(ctx, t)
}

func (p *Prober) probe(ctx context.Context, t tcbisect.Toolchain) (bisect.Verdict, bool) {
	linked, err := p.Installer.Install(ctx, t)
	if err != nil {
		p.logf("install %s: %v", t, err)
		_ = p.Installer.Remove(ctx, t, linked)
		return bisect.Unknown, installer.IsNotFound(err)
	}

	cleanupID := tcbisect.RegisterCleanup(func() {
		_ = p.Installer.Remove(context.Background(), t, linked)
	})

	success, stderr, err := p.Runner.Run(ctx, t, p.Command)
	if err != nil {
		p.logf("run %s: %v", t, err)
		_ = p.Installer.Remove(ctx, t, linked)
		tcbisect.CancelCleanup(cleanupID)
		return bisect.Unknown, false
	}

	var outcome classify.Outcome
	if p.Ask != nil {
		outcome = p.Ask(t, success, stderr)
	} else {
		outcome = p.Mode.Outcome(success, stderr)
	}
	p.logf("RESULT: %s, ===> %s", t, outcome)

	if linked || !p.Preserve {
		if err := p.Installer.Remove(ctx, t, linked); err != nil {
			p.logf("remove %s: %v", t, err)
		}
	}
	tcbisect.CancelCleanup(cleanupID)

	if outcome == classify.Regressed {
		return bisect.Yes, false
	}
	return bisect.No, false
}

// Predicate adapts Probe to the bisect.Predicate shape for a fixed slice
// of toolchains, the binding used by the orchestrator.
func (p *Prober) Predicate(ctx context.Context, toolchains []tcbisect.Toolchain) bisect.Predicate {
	return func(i int) bisect.Verdict {
		return p.Probe(ctx, toolchains[i])
	}
}
