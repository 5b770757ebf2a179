// Package repoaccess implements the repository accessor capability set
// ("commit", "commits", "bound_to_date") against two concrete backends: a
// local git checkout and the GitHub API.
package repoaccess

import (
	"context"

	"github.com/tcbisect/tcbisect"
)

// Accessor resolves references against a project's first-parent commit
// history. Implementations must return commits in non-decreasing
// authored-date order from Commits.
type Accessor interface {
	// Commit resolves a hash, branch name, or tag to a full Commit.
	Commit(ctx context.Context, ref string) (tcbisect.Commit, error)
	// Commits returns the first-parent range [start, end], start included,
	// non-decreasing by authored-date, with the last element equal to end.
	Commits(ctx context.Context, start, end string) ([]tcbisect.Commit, error)
	// BoundToDate resolves a tag-like bound to the authored date of the
	// commit it names.
	BoundToDate(ctx context.Context, ref string) (tcbisect.Date, error)
}

// ErrAmbiguousRef describes a ref that resolves to more than one commit
// (e.g. an unqualified short hash with collisions). Neither accessor in
// this package returns it; an ambiguous ref surfaces as the backend's own
// resolution error.
type ErrAmbiguousRef struct{ Ref string }

func (e *ErrAmbiguousRef) Error() string { return "ambiguous ref: " + e.Ref }
