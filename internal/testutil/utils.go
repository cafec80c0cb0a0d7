package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger matching the one cmd/server wires, tagged
// so test output is distinguishable from a running relay's.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[chatrelay-test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
