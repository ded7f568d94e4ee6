package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/device-conformance/conformance-tests/logging"
	"github.com/device-conformance/conformance-tests/netns"
)

// ChildFlag is the hidden option that switches the binary into child mode:
// execute exactly one serialized request read from stdin.
const ChildFlag = "--internal-exec-test"

// Dispatcher runs one test per call by spawning an isolated child process.
// The process boundary is the isolation guarantee: a crash or hang inside a
// test cannot corrupt the orchestrator or sibling tests.
type Dispatcher struct {
	// Executable is respawned with ChildFlag to execute a single serialized
	// request read from stdin.
	Executable string
	ChildFlag  string

	LogDir  string
	DryRun  bool
	Timeout time.Duration
	Env     []string
	Log     *logging.LevelLogger
}

// Dispatch runs req to completion and maps the child's exit code to a
// result: zero means pass, anything else (including a timeout kill or a
// failure before the child records a verdict) means fail. Panics are
// converted into failed results so a broken test can never take down the
// scheduling goroutine.
func (d *Dispatcher) Dispatch(req ExecutionRequest) (result ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ExecutionResult{Err: fmt.Errorf("unexpected panic while dispatching %s: %+v", req.Test.Name, r)}
		}
	}()

	if d.DryRun {
		d.Log.Infof("Would run test: %s", req.Test.Name)
		return ExecutionResult{Passed: true}
	}

	d.Log.Infof("%-20s - Starting test", req.Test.Name)
	start := time.Now()

	logFile := filepath.Join(d.LogDir, req.Test.Name)
	logs, err := os.Create(logFile)
	if err != nil {
		return ExecutionResult{Err: fmt.Errorf("create log file for %s: %w", req.Test.Name, err)}
	}
	defer logs.Close()

	ctx := context.Background()
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	// The child itself runs inside the rpc partition of the sandbox, so the
	// processes it starts inherit the right namespaces by default.
	args := netns.WrapCommand(netns.RoleRPC, req.NamespaceSuffix, []string{d.Executable, d.ChildFlag})
	cmd := commandContext(ctx, args)
	cmd.Env = d.Env
	cmd.Stdout = logs
	cmd.Stderr = logs

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ExecutionResult{LogFile: logFile, Err: fmt.Errorf("open stdin for %s: %w", req.Test.Name, err)}
	}
	if err := cmd.Start(); err != nil {
		return ExecutionResult{LogFile: logFile, Err: fmt.Errorf("spawn child for %s: %w", req.Test.Name, err)}
	}

	writeErr := WriteRequest(stdin, req)
	_ = stdin.Close()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		d.Log.Errorf("%-30s - TIMED OUT after %0.2f seconds", req.Test.Name, duration.Seconds())
		return ExecutionResult{
			Duration: duration,
			LogFile:  logFile,
			Err:      fmt.Errorf("test %s exceeded its %s timeout", req.Test.Name, d.Timeout),
		}
	case writeErr != nil:
		return ExecutionResult{Duration: duration, LogFile: logFile, Err: writeErr}
	case waitErr != nil:
		d.Log.Errorf("%-30s - FAILED in %0.2f seconds", req.Test.Name, duration.Seconds())
		return ExecutionResult{
			Duration: duration,
			LogFile:  logFile,
			Err:      fmt.Errorf("test %s failed: %w", req.Test.Name, waitErr),
		}
	}

	d.Log.Infof("%-30s - Completed in %0.2f seconds", req.Test.Name, duration.Seconds())
	return ExecutionResult{Passed: true, Duration: duration, LogFile: logFile}
}
