package tcbisect

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseBound(t *testing.T) {
	tests := []struct {
		in   string
		want Bound
	}{
		{"2019-01-01", DateBound(Date{2019, 1, 1})},
		{"6a1c0637ce44aeea6c60527f4c0e7fb33f2bcd0d", CommitBound("6a1c0637ce44aeea6c60527f4c0e7fb33f2bcd0d")},
		{"1.58.0", CommitBound("1.58.0")},
	}
	for _, tc := range tests {
		got := ParseBound(tc.in)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("ParseBound(%q): diff (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestIsTagLike(t *testing.T) {
	tests := []struct {
		in   Bound
		want bool
	}{
		{CommitBound("1.58.0"), true},
		{CommitBound("1.58"), true},
		{CommitBound("6a1c0637ce44aeea6c60527f4c0e7fb33f2bcd0d"), false}, // no dot
		{CommitBound("a.b.c"), false},                                   // dotted but not numeric
		{DateBound(Date{2019, 1, 1}), false},
		{CommitBound("0.0.0.0"), false}, // too many components
	}
	for _, tc := range tests {
		if got := IsTagLike(tc.in); got != tc.want {
			t.Errorf("IsTagLike(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCheckBounds(t *testing.T) {
	today := Today()
	yesterday := today.Pred()
	tomorrow := today.Succ()

	start := DateBound(today)
	end := DateBound(tomorrow)
	if err := CheckBounds(&start, &end); err == nil {
		t.Error("expected error for end == today+1")
	}

	start = DateBound(tomorrow)
	end = DateBound(today)
	if err := CheckBounds(&start, &end); err == nil {
		t.Error("expected error for start == today+1")
	}

	start = DateBound(yesterday)
	end = DateBound(yesterday)
	if err := CheckBounds(&start, &end); err != nil {
		t.Errorf("expected start==end==yesterday to be valid, got %v", err)
	}

	start = DateBound(today)
	end = DateBound(yesterday)
	if err := CheckBounds(&start, &end); err == nil {
		t.Error("expected error for end before start")
	}
}

func TestCanonicalizeTargets(t *testing.T) {
	got := CanonicalizeTargets("x86_64-unknown-linux-gnu", []string{
		"i686-unknown-linux-gnu",
		"x86_64-unknown-linux-gnu",
		"i686-unknown-linux-gnu",
	})
	want := []string{"i686-unknown-linux-gnu", "x86_64-unknown-linux-gnu"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CanonicalizeTargets: diff (-want +got):\n%s", diff)
	}
}

func TestNewToolchainEquality(t *testing.T) {
	a := NewToolchain(NightlySpec(Date{2019, 1, 1}), "h", "a", "b")
	b := NewToolchain(NightlySpec(Date{2019, 1, 1}), "h", "b", "a")
	if !EqualToolchain(a, b) {
		t.Errorf("expected canonicalized toolchains to be equal: %+v vs %+v", a, b)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{2019, 1, 1}
	if got := d.Succ().Pred(); got != d {
		t.Errorf("Succ().Pred() = %v, want %v", got, d)
	}
	if !d.Before(d.Succ()) {
		t.Errorf("expected %v before %v", d, d.Succ())
	}
	if got, want := d.Succ().DaysSince(d), 1; got != want {
		t.Errorf("DaysSince = %d, want %d", got, want)
	}
}
