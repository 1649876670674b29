//go:build windows

package main

import (
	"os"
)

// terminationSignals are the signals a graceful shutdown responds to. On
// Windows that is effectively os.Interrupt (Ctrl+C).
var terminationSignals = []os.Signal{os.Interrupt}
