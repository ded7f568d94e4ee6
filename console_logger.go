package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"

	"github.com/device-conformance/conformance-tests/framework"
)

var (
	failColor = color.New(color.FgRed, color.Bold)
	passColor = color.New(color.FgGreen)
	skipColor = color.New(color.FgYellow)
)

// consoleTestLogger prints per-test progress to stdout. Tests on different
// lanes finish in arbitrary order, so every callback takes the lock.
type consoleTestLogger struct {
	lock sync.Mutex
}

func newConsoleTestLogger() *consoleTestLogger {
	return &consoleTestLogger{}
}

func (c *consoleTestLogger) TestStarted(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	fmt.Printf("[%s]\n", name)
}

func (c *consoleTestLogger) TestFinished(result framework.TestResult) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if result.Failed {
		failColor.Printf("  FAILED: %s (%0.2fs)\n", result.Name, result.Duration.Seconds())
		if result.Err != nil {
			fmt.Printf("    %s\n", result.Err)
		}
		return
	}
	passColor.Printf("  PASSED: %s (%0.2fs)\n", result.Name, result.Duration.Seconds())
}

func (c *consoleTestLogger) TestSkipped(name string, reason string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if reason == "" {
		skipColor.Printf("  SKIPPED: %s\n", name)
		return
	}
	skipColor.Printf("  SKIPPED: %s (%s)\n", name, reason)
}
