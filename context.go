package tcbisect

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptibleContext returns a context canceled on SIGINT/SIGTERM. Before
// canceling, it runs any outstanding RegisterCleanup callbacks so a probe
// interrupted mid-install leaves behind as little partial state as
// possible; this is still best-effort, not a guarantee.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, canc := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		// A second signal terminates immediately, in case cleanup hangs.
		signal.Stop(sig)
		RunCleanups()
		canc()
	}()
	return ctx, canc
}
