package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitProcess is os.Exit, swapped in tests.
var exitProcess = os.Exit

// shutdownContext derives a context from parent that ends on SIGINT or
// SIGTERM. The upload in progress stops at its next context check and an
// open upload session is cancelled. A second signal exits with status 1.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go awaitSignals(parent, sigs, cancel, logger)

	return ctx
}

// awaitSignals runs until parent ends or the process is forced out.
func awaitSignals(parent context.Context, sigs chan os.Signal, cancel context.CancelFunc, logger *slog.Logger) {
	defer signal.Stop(sigs)

	interrupted := false

	for {
		select {
		case <-parent.Done():
			return
		case sig := <-sigs:
			if interrupted {
				logger.Warn("interrupted again, exiting now", slog.String("signal", sig.String()))
				exitProcess(1)

				return
			}

			interrupted = true

			logger.Info("interrupted, stopping after cleanup", slog.String("signal", sig.String()))
			cancel()
		}
	}
}
