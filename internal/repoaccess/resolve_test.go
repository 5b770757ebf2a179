package repoaccess

import (
	"context"
	"testing"

	"github.com/tcbisect/tcbisect"
)

type fakeManifest struct {
	byDate map[tcbisect.Date]string
}

func (f *fakeManifest) Resolve(ctx context.Context, d tcbisect.Date) (string, error) {
	return f.byDate[d], nil
}

type fakeAccessor struct {
	commits map[string]tcbisect.Commit
}

func (f *fakeAccessor) Commit(ctx context.Context, ref string) (tcbisect.Commit, error) {
	return f.commits[ref], nil
}

func (f *fakeAccessor) Commits(ctx context.Context, start, end string) ([]tcbisect.Commit, error) {
	return nil, nil
}

func (f *fakeAccessor) BoundToDate(ctx context.Context, ref string) (tcbisect.Date, error) {
	return f.commits[ref].AuthoredDate, nil
}

func TestResolverCommitForDate(t *testing.T) {
	d := tcbisect.Date{Year: 2019, Month: 1, Day: 1}
	r := &Resolver{Manifest: &fakeManifest{byDate: map[tcbisect.Date]string{d: "abc123"}}}
	got, err := r.CommitForDate(context.Background(), d)
	if err != nil {
		t.Fatalf("CommitForDate: %v", err)
	}
	if got != "abc123" {
		t.Errorf("CommitForDate = %q, want abc123", got)
	}
}

func TestUpgradeBoundsRewritesTag(t *testing.T) {
	tagCommit := tcbisect.Commit{Hash: "deadbeef", AuthoredDate: tcbisect.Date{Year: 2018, Month: 6, Day: 1}}
	r := &Resolver{Accessor: &fakeAccessor{commits: map[string]tcbisect.Commit{"1.58.0": tagCommit}}}

	start := tcbisect.CommitBound("1.58.0")
	end := tcbisect.DateBound(tcbisect.Date{Year: 2019, Month: 1, Day: 1})
	if err := r.UpgradeBounds(context.Background(), &start, &end); err != nil {
		t.Fatalf("UpgradeBounds: %v", err)
	}
	if start.Kind != tcbisect.BoundDate || start.Date != tagCommit.AuthoredDate {
		t.Errorf("start = %+v, want date bound %v", start, tagCommit.AuthoredDate)
	}
}

func TestUpgradeBoundsLeavesMixedAlone(t *testing.T) {
	r := &Resolver{Accessor: &fakeAccessor{}}
	start := tcbisect.CommitBound("abcdef0123456789abcdef0123456789abcdef01")
	end := tcbisect.DateBound(tcbisect.Date{Year: 2019, Month: 1, Day: 1})
	before := start
	if err := r.UpgradeBounds(context.Background(), &start, &end); err != nil {
		t.Fatalf("UpgradeBounds: %v", err)
	}
	if start != before {
		t.Errorf("UpgradeBounds rewrote a pure-commit bound: got %+v, want unchanged %+v", start, before)
	}
}
