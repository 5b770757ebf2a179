package repoaccess

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/tcbisect/tcbisect"
)

// Checkout is an Accessor backed by a local git clone, the way a developer
// bisecting against a checked-out copy of the compiler's source would use
// it rather than round-tripping every lookup through the network.
type Checkout struct {
	repo *git.Repository
}

// OpenCheckout opens the git repository rooted at dir.
func OpenCheckout(dir string) (*Checkout, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("opening checkout at %s: %w", dir, err)
	}
	return &Checkout{repo: repo}, nil
}

func (c *Checkout) Commit(ctx context.Context, ref string) (tcbisect.Commit, error) {
	h, err := c.resolve(ref)
	if err != nil {
		return tcbisect.Commit{}, err
	}
	obj, err := c.repo.CommitObject(*h)
	if err != nil {
		return tcbisect.Commit{}, fmt.Errorf("resolving %s: %w", ref, err)
	}
	return toCommit(obj), nil
}

func (c *Checkout) resolve(ref string) (*plumbing.Hash, error) {
	h, err := c.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("resolving revision %s: %w", ref, err)
	}
	return h, nil
}

func toCommit(obj *object.Commit) tcbisect.Commit {
	return tcbisect.Commit{
		Hash:         obj.Hash.String(),
		AuthoredDate: tcbisect.Date{Year: obj.Author.When.UTC().Year(), Month: obj.Author.When.UTC().Month(), Day: obj.Author.When.UTC().Day()},
		Summary:      obj.Message,
	}
}

// Commits walks the first-parent history from end back to start and
// returns it in non-decreasing authored-date order, last element == end.
// go-git's Log iterator does not expose a first-parent-only mode, so the
// walk is done by hand, taking parent 0 at each step.
func (c *Checkout) Commits(ctx context.Context, start, end string) ([]tcbisect.Commit, error) {
	startHash, err := c.resolve(start)
	if err != nil {
		return nil, err
	}
	endHash, err := c.resolve(end)
	if err != nil {
		return nil, err
	}

	var chain []*object.Commit
	cur, err := c.repo.CommitObject(*endHash)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", end, err)
	}
	for {
		chain = append(chain, cur)
		if cur.Hash == *startHash {
			break
		}
		if cur.NumParents() == 0 {
			return nil, fmt.Errorf("walked past the root commit without finding start %s", start)
		}
		cur, err = cur.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("walking first-parent history: %w", err)
		}
	}

	out := make([]tcbisect.Commit, len(chain))
	for i, obj := range chain {
		out[len(chain)-1-i] = toCommit(obj)
	}
	return out, nil
}

func (c *Checkout) BoundToDate(ctx context.Context, ref string) (tcbisect.Date, error) {
	commit, err := c.Commit(ctx, ref)
	if err != nil {
		return tcbisect.Date{}, err
	}
	return commit.AuthoredDate, nil
}
