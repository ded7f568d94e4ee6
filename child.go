package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"github.com/device-conformance/conformance-tests/harness"
	"github.com/device-conformance/conformance-tests/logging"
	"github.com/device-conformance/conformance-tests/netns"
)

// runChild is the body of the hidden child mode: read one framed execution
// request from stdin, run the test, and report the verdict through the exit
// code. All output goes to stderr/stdout, which the parent has redirected to
// the per-test log artifact.
func runChild(input io.Reader) int {
	log := logging.NewLevelLogger(os.Stderr, logging.Debug, true)

	req, err := harness.ReadRequest(input)
	if err != nil {
		log.Errorf("invalid execution request: %s", err)
		return 1
	}

	start := time.Now()
	if err := executeTest(req, log); err != nil {
		log.Errorf("%-30s - FAILED in %0.2f seconds: %s", req.Test.Name, time.Since(start).Seconds(), err)
		return 1
	}
	log.Infof("%-30s - Completed in %0.2f seconds", req.Test.Name, time.Since(start).Seconds())
	return 0
}

// executeTest starts the application under test in the app partition, then
// drives it with the controller tool from the tool partition. The tool's
// exit code is the verdict.
func executeTest(req harness.ExecutionRequest, log *logging.LevelLogger) error {
	appCommand, ok := req.AppCommands[req.Test.App]
	if !ok || len(appCommand) == 0 {
		return fmt.Errorf("no application binary configured for app kind %q", req.Test.App)
	}
	if len(req.ToolCommand) == 0 {
		return fmt.Errorf("no controller tool configured")
	}

	ctx := context.Background()
	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	appArgs := netns.WrapCommand(netns.RoleApp, req.NamespaceSuffix, appCommand)
	log.Infof("Starting application: %s", shellescape.QuoteCommand(appArgs))
	app := exec.Command(appArgs[0], appArgs[1:]...)
	app.Stdout = os.Stdout
	app.Stderr = os.Stderr
	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	defer func() {
		_ = app.Process.Kill()
		_ = app.Wait()
	}()

	toolArgs := append(append([]string(nil), req.ToolCommand...), expandToolArgs(req)...)
	toolArgs = netns.WrapCommand(netns.RoleTool, req.NamespaceSuffix, toolArgs)
	log.Infof("Running: %s", shellescape.QuoteCommand(toolArgs))
	tool := exec.CommandContext(ctx, toolArgs[0], toolArgs[1:]...)
	tool.Stdout = os.Stdout
	tool.Stderr = os.Stderr
	if err := tool.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("test timed out after %d seconds", req.TimeoutSeconds)
		}
		return fmt.Errorf("controller tool failed: %w", err)
	}
	return nil
}

// expandToolArgs resolves the placeholders in the test's tool argument
// template. "{pics}" becomes the PICS file path.
func expandToolArgs(req harness.ExecutionRequest) []string {
	args := make([]string, 0, len(req.Test.Tool))
	for _, arg := range req.Test.Tool {
		args = append(args, strings.ReplaceAll(arg, "{pics}", req.PicsFile))
	}
	return args
}
