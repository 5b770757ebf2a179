package classify

import "testing"

const iceStderr = "error: internal compiler error: unexpected panic\n"

func TestOutcomeNonCleanErrorWithICE(t *testing.T) {
	if got := NonCleanError.Outcome(false, iceStderr); got != Regressed {
		t.Errorf("NonCleanError/failure/ICE = %v, want Regressed", got)
	}
	if got := IceAlone.Outcome(false, iceStderr); got != Regressed {
		t.Errorf("IceAlone/failure/ICE = %v, want Regressed", got)
	}
	if got := ErrorStatus.Outcome(false, iceStderr); got != Regressed {
		t.Errorf("ErrorStatus/failure/ICE = %v, want Regressed", got)
	}
}

func TestOutcomeSuccessModes(t *testing.T) {
	if got := SuccessStatus.Outcome(true, ""); got != Regressed {
		t.Errorf("SuccessStatus/success = %v, want Regressed", got)
	}
	if got := ErrorStatus.Outcome(true, ""); got != Baseline {
		t.Errorf("ErrorStatus/success = %v, want Baseline", got)
	}
}

func TestOutcomeNotIce(t *testing.T) {
	if got := NotIce.Outcome(false, iceStderr); got != Baseline {
		t.Errorf("NotIce/failure/ICE = %v, want Baseline", got)
	}
	if got := NotIce.Outcome(false, "error: mismatched types"); got != Regressed {
		t.Errorf("NotIce/failure/no-ICE = %v, want Regressed", got)
	}
}

func TestOutcomeNonCleanErrorCleanFailure(t *testing.T) {
	if got := NonCleanError.Outcome(false, "error: mismatched types"); got != Baseline {
		t.Errorf("NonCleanError/failure/no-ICE = %v, want Baseline", got)
	}
}

func TestMustProcessStderr(t *testing.T) {
	for _, m := range []Mode{ErrorStatus, SuccessStatus} {
		if m.MustProcessStderr() {
			t.Errorf("%v.MustProcessStderr() = true, want false", m)
		}
	}
	for _, m := range []Mode{IceAlone, NotIce, NonCleanError} {
		if !m.MustProcessStderr() {
			t.Errorf("%v.MustProcessStderr() = false, want true", m)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Mode
	}{
		{"error", ErrorStatus},
		{"success", SuccessStatus},
		{"ice", IceAlone},
		{"non-ice", NotIce},
		{"non-error", NonCleanError},
	} {
		got, ok := ParseMode(tc.in)
		if !ok || got != tc.want {
			t.Errorf("ParseMode(%q) = (%v, %v), want (%v, true)", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := ParseMode("bogus"); ok {
		t.Error("ParseMode(\"bogus\") should fail")
	}
}
