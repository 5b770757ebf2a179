// Package report formats bisection results for a human: a short interim
// summary after each phase, and a longer final block suitable to paste
// into an issue tracker. Writes to an explicit io.Writer rather than
// directly to stdio, matching the rest of this module's preference for
// explicit writers.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/tcbisect/tcbisect"
)

// Phase is one bisection phase's result, ready to format.
type Phase struct {
	Searched []tcbisect.Toolchain
	Found    int
	// DisplayStart overrides the first searched toolchain's string form:
	// set when the user pinned an explicit --start date, so the interim
	// report shows that date rather than the coarse scan's discovered
	// first-success nightly.
	DisplayStart string
}

func (p Phase) start() string {
	if p.DisplayStart != "" {
		return p.DisplayStart
	}
	return p.Searched[0].String()
}

func (p Phase) end() string {
	return p.Searched[len(p.Searched)-1].String()
}

// Interim prints the searched range and the boundary found, visually
// delimited, after one bisection phase completes.
func Interim(w io.Writer, p Phase) {
	fmt.Fprintf(w, "searched toolchains %s through %s\n", p.start(), p.end())
	fmt.Fprintln(w)
	fmt.Fprintln(w)
	rule := strings.Repeat("*", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Regression in %s\n", p.Searched[p.Found])
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

const header = `==================================================================
= Please file this regression report upstream                  =
==================================================================`

// Final is everything the final report needs beyond the two phases
// themselves.
type Final struct {
	Nightly Phase
	CI      Phase
	// RepoURL is the upstream project's web URL, e.g.
	// "https://github.com/rust-lang/rust", used to build the commit
	// comparison and single-commit links.
	RepoURL string
	Host    string
	// Args is the reproduction command line, args[0] already stripped
	// (os.Args[1:]).
	Args []string
}

// WriteFinal emits the paste-into-an-issue block: searched date range,
// regressing nightly, a commit-range comparison URL, the regressing
// commit's URL, the host triple, and a verbatim reproduction command
// line. The two nightly lines are omitted when f.Nightly is empty (a
// CI-only bisection).
func WriteFinal(w io.Writer, f Final) {
	fmt.Fprintln(w, header)
	fmt.Fprintln(w)

	if len(f.Nightly.Searched) > 0 {
		fmt.Fprintf(w, "searched nightlies: from %s to %s\n", f.Nightly.start(), f.Nightly.end())
		fmt.Fprintf(w, "regressed nightly: %s\n", f.Nightly.Searched[f.Nightly.Found])
	}

	repo := strings.TrimSuffix(f.RepoURL, "/")
	ciToolchains := f.CI.Searched
	fmt.Fprintf(w, "searched commit range: %s/compare/%s...%s\n",
		repo, ciToolchains[0].Spec.Commit, ciToolchains[len(ciToolchains)-1].Spec.Commit)
	fmt.Fprintf(w, "regressed commit: %s/commit/%s\n", repo, ciToolchains[f.CI.Found].Spec.Commit)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "<details>")
	fmt.Fprintln(w, "<summary>bisected with tcbisect</summary>")
	fmt.Fprintln(w)
	fmt.Fprintln(w)
	if f.Host != "" {
		fmt.Fprintf(w, "Host triple: %s\n", f.Host)
	}

	fmt.Fprintln(w, "Reproduce with:")
	fmt.Fprintln(w, "```bash")
	fmt.Fprint(w, "tcbisect ")
	fmt.Fprintln(w, strings.Join(f.Args, " "))
	fmt.Fprintln(w, "```")
	fmt.Fprintln(w, "</details>")
}
