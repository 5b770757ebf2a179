package probe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tcbisect/tcbisect"
	"github.com/tcbisect/tcbisect/internal/classify"
)

func TestCommandRunnerSuccess(t *testing.T) {
	r := &CommandRunner{}
	success, _, err := r.Run(context.Background(), testToolchain(), []string{"true"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !success {
		t.Error("Run = false, want true for an exit-0 command")
	}
}

func TestCommandRunnerNonZeroExitIsNotError(t *testing.T) {
	r := &CommandRunner{}
	success, _, err := r.Run(context.Background(), testToolchain(), []string{"false"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if success {
		t.Error("Run = true, want false for an exit-1 command")
	}
}

func TestCommandRunnerCapturesStderr(t *testing.T) {
	r := &CommandRunner{}
	_, stderr, err := r.Run(context.Background(), testToolchain(), []string{"sh", "-c", "echo boom >&2; exit 1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stderr != "boom\n" {
		t.Errorf("stderr = %q, want %q", stderr, "boom\n")
	}
}

func TestCommandRunnerMissingBinaryIsError(t *testing.T) {
	r := &CommandRunner{}
	_, _, err := r.Run(context.Background(), testToolchain(), []string{"tcbisect-no-such-binary"})
	if err == nil {
		t.Fatal("Run: want error for a binary that cannot be started")
	}
}

type slowRunner struct{ delay time.Duration }

func (s *slowRunner) Run(ctx context.Context, t tcbisect.Toolchain, command []string) (bool, string, error) {
	select {
	case <-time.After(s.delay):
		return true, "", nil
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

func TestTimeoutRunnerForcesRegressionMarker(t *testing.T) {
	r := &TimeoutRunner{Inner: &slowRunner{delay: time.Second}, Timeout: 10 * time.Millisecond}
	success, stderr, err := r.Run(context.Background(), testToolchain(), []string{"sleep", "1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if success {
		t.Error("Run success = true, want false on timeout")
	}
	if !strings.Contains(stderr, timeoutMarker) {
		t.Errorf("stderr = %q, want it to contain the timeout marker", stderr)
	}
}

func TestTimeoutRunnerPassesThroughUnderDeadline(t *testing.T) {
	r := &TimeoutRunner{Inner: &fakeRunner{success: true}, Timeout: time.Second}
	success, _, err := r.Run(context.Background(), testToolchain(), []string{"true"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !success {
		t.Error("Run success = false, want true")
	}
}

func TestWrapTimeoutOverridesModeOnMarker(t *testing.T) {
	ask := WrapTimeout(classify.SuccessStatus)
	got := ask(testToolchain(), false, "tcbisect: probe exceeded its timeout")
	if got != classify.Regressed {
		t.Errorf("outcome = %v, want Regressed on timeout regardless of mode", got)
	}
}

func TestWrapTimeoutFallsBackToMode(t *testing.T) {
	ask := WrapTimeout(classify.ErrorStatus)
	got := ask(testToolchain(), false, "ordinary failure")
	if got != classify.Regressed {
		t.Errorf("outcome = %v, want Regressed per ErrorStatus on a plain failure", got)
	}
	got = ask(testToolchain(), true, "")
	if got != classify.Baseline {
		t.Errorf("outcome = %v, want Baseline per ErrorStatus on success", got)
	}
}
