package repoaccess

import (
	"context"

	"github.com/tcbisect/tcbisect"
)

// ManifestResolver is the date-half of the resolver: fetch the commit
// hash published for a nightly date. internal/manifest.Resolver satisfies
// this.
type ManifestResolver interface {
	Resolve(ctx context.Context, d tcbisect.Date) (string, error)
}

// Resolver combines a ManifestResolver for date->commit with an Accessor
// for tag-or-sha->commit, plus the opportunistic bound upgrade below.
type Resolver struct {
	Manifest ManifestResolver
	Accessor Accessor
}

// CommitForDate returns the commit hash of the nightly published on d.
func (r *Resolver) CommitForDate(ctx context.Context, d tcbisect.Date) (string, error) {
	return r.Manifest.Resolve(ctx, d)
}

// ResolveBound resolves a bound to a commit, and — if it is tag-like —
// additionally to the commit's authored date, so a tag bound can
// participate in a date-first bisection.
func (r *Resolver) ResolveBound(ctx context.Context, b tcbisect.Bound) (tcbisect.Commit, error) {
	switch b.Kind {
	case tcbisect.BoundDate:
		hash, err := r.CommitForDate(ctx, b.Date)
		if err != nil {
			return tcbisect.Commit{}, err
		}
		return r.Accessor.Commit(ctx, hash)
	default:
		return r.Accessor.Commit(ctx, b.Commit)
	}
}

// UpgradeBounds rewrites any tag bound to its authored date, in place,
// when both start and end are date-like (absent, date, or tag). Mixed
// bounds (one pure commit, one date-like) are left untouched: the
// orchestrator bisects by commit only when the other bound is absent or a
// tag, and rejects a pure commit paired with a date.
func (r *Resolver) UpgradeBounds(ctx context.Context, start, end *tcbisect.Bound) error {
	if !tcbisect.IsDateLike(start) || !tcbisect.IsDateLike(end) {
		return nil
	}
	for _, b := range []*tcbisect.Bound{start, end} {
		if b == nil || !tcbisect.IsTagLike(*b) {
			continue
		}
		d, err := r.Accessor.BoundToDate(ctx, b.Commit)
		if err != nil {
			return err
		}
		*b = tcbisect.DateBound(d)
	}
	return nil
}
