// Command tcbisect locates the commit or nightly that introduced a
// regression in a compiler toolchain, by bisecting first over daily
// nightly builds and then over per-commit CI builds.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/tcbisect/tcbisect"
	"github.com/tcbisect/tcbisect/internal/classify"
	"github.com/tcbisect/tcbisect/internal/installer"
	"github.com/tcbisect/tcbisect/internal/manifest"
	"github.com/tcbisect/tcbisect/internal/orchestrator"
	"github.com/tcbisect/tcbisect/internal/probe"
	"github.com/tcbisect/tcbisect/internal/repoaccess"
	"github.com/tcbisect/tcbisect/internal/report"
)

// runConfig is the parsed command line, kept separate from the flag.*
// vars so run can be exercised by tests without going through flag.Parse.
type runConfig struct {
	start, end string
	byCommit   bool

	access, repo, githubToken string

	regress string
	alt     bool
	prompt  bool
	timeout time.Duration

	testDir, script, host, target string
	withSrc, withDev              bool
	component                     string
	preserve, preserveTarget      bool
	withoutCargo                  bool

	install      string
	forceInstall bool
	verbose      bool

	nightlyBaseURL, ciBaseURL, repoURL string

	command []string
}

func main() {
	cfg := runConfig{}
	flag.StringVar(&cfg.start, "start", "", "earliest known-good bound: a date (YYYY-MM-DD), commit hash, or version tag")
	flag.StringVar(&cfg.end, "end", "", "earliest known-bad bound, same forms as -start")
	flag.BoolVar(&cfg.byCommit, "by-commit", false, "force commit-level bisection even when -start/-end are dates")

	flag.StringVar(&cfg.access, "access", "remote", `repository accessor: "checkout" (local clone) or "remote" (GitHub API)`)
	flag.StringVar(&cfg.repo, "repo", "", `for -access=checkout, the clone's path; for -access=remote, "owner/repo" or its https URL`)
	flag.StringVar(&cfg.githubToken, "github_token", os.Getenv("GITHUB_TOKEN"), "GitHub API token for -access=remote (unauthenticated requests are rate-limited)")

	flag.StringVar(&cfg.regress, "regress", "error", "classifier mode: error, success, ice, non-ice, non-error")
	flag.BoolVar(&cfg.alt, "alt", false, "probe the alternative optimization profile (disallowed for nightly bisection)")
	flag.BoolVar(&cfg.prompt, "prompt", false, "ask for a manual regressed/baseline verdict after every probe, overriding -regress")
	flag.DurationVar(&cfg.timeout, "timeout", 0, "wall-clock limit per probe; a probe that outruns it is treated as a regression (0 disables)")

	flag.StringVar(&cfg.testDir, "test-dir", "", "working directory the test command runs in")
	flag.StringVar(&cfg.script, "script", "", "test script to run when no trailing command is given after --")
	flag.StringVar(&cfg.host, "host", "", "host target triple (autodetected from GOOS/GOARCH if empty)")
	flag.StringVar(&cfg.target, "target", "", "comma-separated extra target triples whose standard library must be installed")
	flag.BoolVar(&cfg.withSrc, "with-src", false, "set TCBISECT_WITH_SRC=1 in the test command's environment (the installer does not fetch rust-src)")
	flag.BoolVar(&cfg.withDev, "with-dev", false, "set TCBISECT_WITH_DEV=1 in the test command's environment (the installer does not fetch rustc-dev)")
	flag.StringVar(&cfg.component, "component", "", "comma-separated extra component names, passed to the test command as TCBISECT_COMPONENTS (the installer does not fetch them)")
	flag.BoolVar(&cfg.preserve, "preserve", false, "keep each probed toolchain installed after its probe completes")
	flag.BoolVar(&cfg.preserveTarget, "preserve-target", false, "keep each probed toolchain's target artifacts after its probe completes")
	flag.BoolVar(&cfg.withoutCargo, "without-cargo", false, "set TCBISECT_WITHOUT_CARGO=1 in the test command's environment")

	flag.StringVar(&cfg.install, "install", "", "install-only mode: install the toolchain named by this bound and exit (or run the trailing command under it)")
	flag.BoolVar(&cfg.forceInstall, "force-install", false, "reinstall even if the toolchain directory already exists")
	flag.BoolVar(&cfg.verbose, "verbose", false, "log every probe and bisection step")

	flag.StringVar(&cfg.nightlyBaseURL, "nightly-base-url", "https://static.rust-lang.org/dist", "nightly archive and manifest server root")
	flag.StringVar(&cfg.ciBaseURL, "ci-base-url", "https://ci-artifacts.rust-lang.org/rustc-builds", "CI artifact server root")
	flag.StringVar(&cfg.repoURL, "repo-url", "", "upstream web URL used to build report links (defaults to -repo for -access=remote)")

	flag.Parse()
	cfg.command = flag.Args()

	if err := run(cfg); err != nil {
		var exitErr *orchestrator.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Err)
			os.Exit(exitErr.Code)
		}
		log.Fatalf("%v", err)
	}
}

func run(cfg runConfig) error {
	host := cfg.host
	if host == "" {
		var ok bool
		host, ok = defaultHostTriple()
		if !ok {
			return &tcbisect.InvalidConfigError{Msg: "could not autodetect a host triple for " + runtime.GOOS + "/" + runtime.GOARCH + "; pass -host explicitly"}
		}
	}

	mode, ok := classify.ParseMode(cfg.regress)
	if !ok {
		return &tcbisect.InvalidConfigError{Msg: "unknown -regress mode " + cfg.regress}
	}

	logf := func(string, ...interface{}) {}
	if cfg.verbose {
		logf = log.Printf
	}

	ctx, cancel := tcbisect.InterruptibleContext()
	defer cancel()

	inst := newInstaller(cfg)

	runner := probe.Runner(&probe.CommandRunner{Dir: cfg.testDir, Env: collaboratorEnv(cfg)})
	if cfg.timeout > 0 {
		runner = &probe.TimeoutRunner{Inner: runner, Timeout: cfg.timeout}
	}

	pr := &probe.Prober{
		Installer: inst,
		Runner:    runner,
		Mode:      mode,
		Command:   testCommand(cfg),
		Preserve:  cfg.preserve || cfg.preserveTarget,
		Log:       logf,
	}
	if cfg.timeout > 0 {
		pr.Ask = probe.WrapTimeout(mode)
	}
	if cfg.prompt {
		pr.Ask = promptAsk(pr.Ask, mode)
	}

	if cfg.install != "" {
		return runInstallOnly(ctx, cfg, host, inst, runner)
	}

	access, err := newAccessor(ctx, cfg)
	if err != nil {
		return err
	}

	var start, end *tcbisect.Bound
	if cfg.start != "" {
		b := tcbisect.ParseBound(cfg.start)
		start = &b
	}
	if cfg.end != "" {
		b := tcbisect.ParseBound(cfg.end)
		end = &b
	}

	orchCfg := &orchestrator.Config{
		Host: host, Target: cfg.target,
		Start: start, End: end, ByCommit: cfg.byCommit, Alt: cfg.alt,
		Access: access, Manifest: manifest.NewResolver(cfg.nightlyBaseURL),
		Installer: inst, Log: logf,
	}

	result, err := orchestrator.Run(ctx, orchCfg, pr)
	if err != nil {
		return err
	}

	var nightlyPhase *report.Phase
	if result.Nightly != nil {
		p := toReportPhase(*result.Nightly, cfg.start)
		report.Interim(os.Stdout, p)
		nightlyPhase = &p
	}
	ciPhase := toReportPhase(result.CI, "")
	report.Interim(os.Stdout, ciPhase)

	finalRepoURL := cfg.repoURL
	if finalRepoURL == "" {
		finalRepoURL = cfg.repo
	}
	f := report.Final{CI: ciPhase, RepoURL: finalRepoURL, Host: host, Args: os.Args[1:]}
	if nightlyPhase != nil {
		f.Nightly = *nightlyPhase
	}
	report.WriteFinal(os.Stdout, f)

	if result.CI.Warning != nil {
		log.Printf("warning: %v", result.CI.Warning)
	}
	if result.Nightly != nil && result.Nightly.Warning != nil {
		log.Printf("warning: %v", result.Nightly.Warning)
	}
	return nil
}

func toReportPhase(p orchestrator.PhaseResult, displayStart string) report.Phase {
	return report.Phase{Searched: p.Searched, Found: p.Found, DisplayStart: displayStart}
}

// testCommand returns the trailing argv, falling back to -script run
// through a shell when no command follows --.
func testCommand(cfg runConfig) []string {
	if len(cfg.command) > 0 {
		return cfg.command
	}
	if cfg.script != "" {
		return []string{"sh", "-c", cfg.script}
	}
	return nil
}

// collaboratorEnv forwards the component-selection and cargo-presence
// flags to the test command's environment, since the installer only ever
// fetches one std archive per target and has no per-component selection
// to forward them to instead.
func collaboratorEnv(cfg runConfig) []string {
	var env []string
	if cfg.withSrc {
		env = append(env, "TCBISECT_WITH_SRC=1")
	}
	if cfg.withDev {
		env = append(env, "TCBISECT_WITH_DEV=1")
	}
	if cfg.component != "" {
		env = append(env, "TCBISECT_COMPONENTS="+cfg.component)
	}
	if cfg.withoutCargo {
		env = append(env, "TCBISECT_WITHOUT_CARGO=1")
	}
	return env
}

func newAccessor(ctx context.Context, cfg runConfig) (repoaccess.Accessor, error) {
	switch cfg.access {
	case "checkout":
		if cfg.repo == "" {
			return nil, &tcbisect.InvalidConfigError{Msg: "-access=checkout requires -repo to name a local clone"}
		}
		return repoaccess.OpenCheckout(cfg.repo)
	case "remote", "":
		if cfg.repo == "" {
			return nil, &tcbisect.InvalidConfigError{Msg: `-access=remote requires -repo to name "owner/repo"`}
		}
		return repoaccess.NewGitHub(ctx, cfg.repo, cfg.githubToken)
	default:
		return nil, &tcbisect.InvalidConfigError{Msg: "unknown -access variant " + cfg.access}
	}
}

// ciOnlyByBounds reports whether cfg's flags alone (independent of the
// orchestrator's own bound resolution) already force a commit-level
// bisection, which newInstaller needs to know before orchestrator.Run
// ever looks at it in order to pick the archive server.
func ciOnlyByBounds(cfg runConfig) bool {
	if cfg.byCommit {
		return true
	}
	for _, s := range []string{cfg.start, cfg.end} {
		if s == "" {
			continue
		}
		b := tcbisect.ParseBound(s)
		if b.Kind == tcbisect.BoundCommit && !tcbisect.IsTagLike(b) {
			return true
		}
	}
	return false
}

func newInstaller(cfg runConfig) *installer.Installer {
	// CI toolchains live under a separate archive root than nightlies;
	// archiveURL always prefixes in.BaseURL, and a bisection never mixes
	// the two phases' installers (see orchestrator.Run's ciOnly dispatch),
	// so picking the base URL once up front is sufficient.
	if cfg.install == "" && ciOnlyByBounds(cfg) {
		return installer.New(cfg.ciBaseURL)
	}
	if cfg.install != "" {
		if b := tcbisect.ParseBound(cfg.install); b.Kind == tcbisect.BoundCommit && !tcbisect.IsTagLike(b) {
			return installer.New(cfg.ciBaseURL)
		}
	}
	return installer.New(cfg.nightlyBaseURL)
}

func runInstallOnly(ctx context.Context, cfg runConfig, host string, inst *installer.Installer, runner probe.Runner) error {
	b := tcbisect.ParseBound(cfg.install)
	var spec tcbisect.ToolchainSpec
	switch b.Kind {
	case tcbisect.BoundDate:
		spec = tcbisect.NightlySpec(b.Date)
	default:
		spec = tcbisect.CISpec(b.Commit, cfg.alt)
	}
	var targets []string
	if cfg.target != "" {
		targets = strings.Split(cfg.target, ",")
	}
	t := tcbisect.NewToolchain(spec, host, targets...)

	if cfg.forceInstall {
		_ = inst.Remove(ctx, t, false)
	}
	if _, err := inst.Install(ctx, t); err != nil {
		return fmt.Errorf("installing %s: %w", t, err)
	}
	fmt.Printf("installed %s\n", t)

	command := testCommand(cfg)
	if len(command) == 0 {
		return nil
	}
	success, stderr, err := runner.Run(ctx, t, command)
	if stderr != "" {
		fmt.Fprint(os.Stderr, stderr)
	}
	if err != nil {
		return fmt.Errorf("running command under %s: %w", t, err)
	}
	if !success {
		return &orchestrator.ExitError{Code: 1, Err: fmt.Errorf("command failed under %s", t)}
	}
	return nil
}

// promptAsk wires -prompt: an interactive override that still lets a
// -timeout-forced regression through untouched, since a hang is never a
// question worth asking.
func promptAsk(inner func(t tcbisect.Toolchain, success bool, stderr string) classify.Outcome, mode classify.Mode) func(tcbisect.Toolchain, bool, string) classify.Outcome {
	reader := bufio.NewReader(os.Stdin)
	return func(t tcbisect.Toolchain, success bool, stderr string) classify.Outcome {
		if inner != nil && strings.Contains(stderr, "exceeded its timeout") {
			return inner(t, success, stderr)
		}
		fmt.Fprintf(os.Stderr, "%s: exit success=%v, stderr below\n%s\nregressed? [y/n]: ", t, success, stderr)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return mode.Outcome(success, stderr)
			}
			switch strings.TrimSpace(strings.ToLower(line)) {
			case "y", "yes":
				return classify.Regressed
			case "n", "no":
				return classify.Baseline
			default:
				fmt.Fprint(os.Stderr, "please answer y or n: ")
			}
		}
	}
}

func defaultHostTriple() (string, bool) {
	triples := map[string]map[string]string{
		"linux": {
			"amd64": "x86_64-unknown-linux-gnu",
			"arm64": "aarch64-unknown-linux-gnu",
		},
		"darwin": {
			"amd64": "x86_64-apple-darwin",
			"arm64": "aarch64-apple-darwin",
		},
		"windows": {
			"amd64": "x86_64-pc-windows-msvc",
		},
	}
	byArch, ok := triples[runtime.GOOS]
	if !ok {
		return "", false
	}
	t, ok := byArch[runtime.GOARCH]
	return t, ok
}
