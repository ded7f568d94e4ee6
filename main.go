// Command conformance-tests runs a device-protocol conformance suite against
// real application binaries, giving each concurrently running test its own
// private virtual network.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/device-conformance/conformance-tests/catalog"
	"github.com/device-conformance/conformance-tests/framework"
	"github.com/device-conformance/conformance-tests/harness"
	"github.com/device-conformance/conformance-tests/logging"
	"github.com/device-conformance/conformance-tests/netns"
)

const insideUnshareFlag = "--internal-inside-unshare"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var params commandParams
	if !params.Read(args) {
		return 1
	}
	if params.execTestChild {
		return runChild(os.Stdin)
	}

	level, err := logging.ParseLevel(params.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logging.NewLevelLogger(os.Stderr, level, !params.noLogTimestamps)

	// The base environment for every spawned command is snapshotted once.
	env := os.Environ()

	allTests, err := catalog.Load(params.manifestPath)
	if err != nil {
		log.Errorf("%s", err)
		return 1
	}

	selection := framework.Selection{
		Targets:     params.targets,
		TargetGlob:  params.targetGlob,
		SkipGlob:    params.targetSkipGlob,
		IncludeTags: framework.NewTagSet(params.includeTags...),
		ExcludeTags: framework.NewTagSet(params.excludeTags...),
	}
	selected, err := framework.SelectTests(allTests, selection)
	if err != nil {
		log.Errorf("%s", err)
		return 1
	}

	switch params.command {
	case "list":
		for _, test := range selected {
			if tags := test.TagsString(); tags != "" {
				fmt.Printf("%s (%s)\n", test.Name, tags)
			} else {
				fmt.Println(test.Name)
			}
		}
		return 0
	case "shell":
		return runShell(&params, env, log)
	case "run":
		return runSuite(&params, selection, selected, env, log)
	}
	fmt.Fprintf(os.Stderr, "unknown command %q (valid: run, list, shell)\n", params.command)
	return 1
}

func runSuite(params *commandParams, selection framework.Selection, tests []catalog.Test, env []string, log *logging.LevelLogger) int {
	isolate := runtime.GOOS == "linux"
	if isolate {
		if err := netns.EnsureIsolationAvailable(params.insideUnshare, insideUnshareFlag, env, log); err != nil {
			log.Errorf("%s", err)
			return 1
		}
	} else if params.threads > 1 {
		log.Warnf("Network isolation is unavailable on %s; running tests one at a time", runtime.GOOS)
	}

	appCommands := make(map[string][]string)
	for _, test := range tests {
		if path, ok := params.apps[test.App]; ok {
			appCommands[test.App] = []string{path}
		} else {
			appCommands[test.App] = []string{test.App}
		}
	}

	var toolCommand []string
	if params.toolWrapper != "" {
		toolCommand = append(toolCommand, params.toolWrapper)
	}
	toolCommand = append(toolCommand, params.tool)

	orchestrator := harness.NewOrchestrator(harness.RunConfig{
		Tests:            tests,
		Selection:        selection,
		Threads:          params.threads,
		Iterations:       params.iterations,
		ExpectedFailures: params.expectedFailures,
		KeepGoing:        params.keepGoing,
		DryRun:           params.dryRun,
		Isolate:          isolate,
		WifiMock:         params.wifiMock,
		MockServices:     harness.WifiMockServices("ConformanceAP", "ConformanceAPPassword"),
		AppCommands:      appCommands,
		ToolCommand:      toolCommand,
		PicsFile:         params.picsFile,
		Timeout:          time.Duration(params.testTimeoutSeconds) * time.Second,
		LogDir:           params.logDir,
		Env:              env,
		Log:              log,
		TestLogger:       newConsoleTestLogger(),
		LogSink:          os.Stderr,
	})

	err := orchestrator.Run()
	var budgetErr *harness.BudgetError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, harness.ErrExpectedFailuresRequireKeepGoing):
		log.Errorf("'--expected-failures %d' used without '--keep-going'", params.expectedFailures)
		return 2
	case errors.As(err, &budgetErr):
		log.Errorf("%s", err)
		return 2
	default:
		log.Errorf("%s", err)
		return 1
	}
}

// runShell provisions one namespace set and replaces the process with a bash
// shell inside the (unshared) execution context, for debugging the sandbox.
func runShell(params *commandParams, env []string, log *logging.LevelLogger) int {
	if runtime.GOOS != "linux" {
		log.Errorf("the shell command requires Linux network namespaces")
		return 1
	}
	if err := netns.EnsureIsolationAvailable(params.insideUnshare, insideUnshareFlag, env, log); err != nil {
		log.Errorf("%s", err)
		return 1
	}
	_, err := netns.Provision(netns.Config{
		Suffix:        "0",
		SetupAppLink:  true,
		SetupToolLink: true,
		Runner:        netns.NewHostRunner(env, log.DebugWriter()),
		Log:           log.DebugWriter(),
	})
	if err != nil {
		log.Errorf("%s", err)
		return 1
	}
	bash, err := exec.LookPath("bash")
	if err != nil {
		log.Errorf("cannot find bash: %s", err)
		return 1
	}
	if err := unix.Exec(bash, []string{"bash"}, env); err != nil {
		log.Errorf("failed to start shell: %s", err)
		return 1
	}
	return 0
}
