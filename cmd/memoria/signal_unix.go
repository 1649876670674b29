//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals are the signals a graceful shutdown responds to.
// Process managers like systemd and kubernetes ask for shutdown with SIGTERM.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
