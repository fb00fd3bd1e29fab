package bridge

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// HandleSignals turns SIGINT and SIGTERM into a stop request. The returned
// function stops listening.
func HandleSignals(lc *Lifecycle, logger zerolog.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigCh:
				if lc.RequestStop("signal " + sig.String()) {
					logger.Info().Str("signal", sig.String()).Msg("Stop requested by signal")
				}
			case <-quit:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(quit)
	}
}
