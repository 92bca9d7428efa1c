//go:build !windows

package main

import (
	"os"
	"syscall"
)

// undoSignals pop the newest scene checkpoint
var undoSignals = []os.Signal{syscall.SIGUSR1}
