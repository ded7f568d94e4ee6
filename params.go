package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/device-conformance/conformance-tests/framework"
)

const defaultManifest = "tests/manifest.yaml"
const defaultPicsFile = "tests/ci-pics-values"
const defaultLogDir = "logs"

// appPathList collects repeatable "kind=path" application overrides.
type appPathList map[string]string

func (a appPathList) String() string {
	var entries []string
	for kind, path := range a {
		entries = append(entries, kind+"="+path)
	}
	return strings.Join(entries, ", ")
}

func (a appPathList) Set(value string) error {
	kind, path, found := strings.Cut(value, "=")
	if !found || kind == "" || path == "" {
		return fmt.Errorf("expected kind=path, got %q", value)
	}
	a[kind] = path
	return nil
}

type commandParams struct {
	command string

	logLevel        string
	noLogTimestamps bool
	dryRun          bool
	manifestPath    string

	targets        framework.StringList
	targetGlob     string
	targetSkipGlob string
	includeTags    framework.TagList
	excludeTags    framework.TagList

	iterations         int
	threads            int
	picsFile           string
	keepGoing          bool
	testTimeoutSeconds int
	expectedFailures   int
	wifiMock           bool
	logDir             string

	apps        appPathList
	tool        string
	toolWrapper string

	insideUnshare bool
	execTestChild bool
}

func (c *commandParams) Read(args []string) bool {
	c.apps = make(appPathList)

	fs := flag.NewFlagSet("conformance-tests", flag.ExitOnError)
	fs.StringVar(&c.logLevel, "log-level", "info", "verbosity of script output (debug, info, warn, fatal)")
	fs.BoolVar(&c.noLogTimestamps, "no-log-timestamps", false, "skip timestamps in log output")
	fs.BoolVar(&c.dryRun, "dry-run", false, "only print out the commands that would be executed")
	fs.StringVar(&c.manifestPath, "manifest", defaultManifest, "test manifest to load")
	fs.Var(&c.targets, "target", "test to run (repeatable; \"all\" runs every test)")
	fs.StringVar(&c.targetGlob, "target-glob", "", "what targets to accept (glob)")
	fs.StringVar(&c.targetSkipGlob, "target-skip-glob", "", "what targets to skip (glob)")
	fs.Var(&c.includeTags, "include-tags", "test tags to include (repeatable); equivalent to excluding all others")
	fs.Var(&c.excludeTags, "exclude-tags", "test tags to exclude (repeatable); takes precedence over include")

	fs.IntVar(&c.iterations, "iterations", 1, "number of iterations to run")
	fs.IntVar(&c.threads, "threads", 1, "number of parallel test lanes")
	fs.StringVar(&c.picsFile, "pics-file", defaultPicsFile, "PICS file to use for test runs")
	fs.BoolVar(&c.keepGoing, "keep-going", false, "keep running the rest of the tests even if a test fails")
	fs.IntVar(&c.testTimeoutSeconds, "test-timeout-seconds", 0, "if provided, fail any test running longer than this")
	fs.IntVar(&c.expectedFailures, "expected-failures", 0,
		"number of tests expected to fail in each iteration; the run passes only if the failure count matches")
	fs.BoolVar(&c.wifiMock, "wifi-mock", false, "start radio mock services for BLE-WiFi commissioning tests")
	fs.StringVar(&c.logDir, "log-dir", defaultLogDir, "directory for per-test log artifacts")

	fs.Var(c.apps, "app", "application binary override as kind=path (repeatable)")
	fs.StringVar(&c.tool, "tool", "conformance-tool", "controller tool binary to drive the tests")
	fs.StringVar(&c.toolWrapper, "tool-wrapper", "", "interpreter or runtime used to invoke the controller tool")

	// Internal flags; not part of the supported surface.
	fs.BoolVar(&c.insideUnshare, "internal-inside-unshare", false, "")
	fs.BoolVar(&c.execTestChild, "internal-exec-test", false, "")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}

	c.command = fs.Arg(0)
	if c.command == "" {
		c.command = "run"
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %s\n", strings.Join(fs.Args()[1:], " "))
		return false
	}
	return true
}
