//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals lists the signals that should trigger a graceful shutdown.
// SIGTERM is what systemd and kubernetes send before killing the server.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
