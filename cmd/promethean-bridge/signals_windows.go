//go:build windows

package main

import "os"

var undoSignals []os.Signal
