package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/device-conformance/conformance-tests/catalog"
	"github.com/device-conformance/conformance-tests/framework"
	"github.com/device-conformance/conformance-tests/logging"
	"github.com/device-conformance/conformance-tests/netns"
)

// ErrExpectedFailuresRequireKeepGoing is returned when an expected-failure
// budget is configured without keep-going: without it the run would stop at
// the first failure and the budget comparison would be meaningless.
var ErrExpectedFailuresRequireKeepGoing = errors.New("--expected-failures requires --keep-going")

// BudgetError reports an iteration whose observed failure count did not
// match the expected-failure budget. It maps to a distinct exit status from
// ordinary test failure.
type BudgetError struct {
	Summary framework.Summary
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("expected failure count %d, but got %d",
		e.Summary.ExpectedFailures, e.Summary.Failures)
}

// Sandbox is the per-lane isolated network as the orchestrator sees it.
// *netns.Namespace implements it; tests substitute fakes.
type Sandbox interface {
	Suffix() string
	Wrap(role netns.Role, command []string) []string
	Terminate() error
}

type (
	// DispatchFunc runs one execution request to completion.
	DispatchFunc func(ExecutionRequest) ExecutionResult
	// ProvisionFunc creates the sandbox for one lane.
	ProvisionFunc func(cfg netns.Config) (Sandbox, error)
	// StartMocksFunc starts the auxiliary services for one test.
	StartMocksFunc func(services []MockService, sandbox Sandbox, env []string, log *logging.LevelLogger) (MockStopper, error)
)

// MockStopper is what the orchestrator holds onto between mock service
// startup and the mandatory stop before namespace teardown.
type MockStopper interface {
	Stop() error
}

// RunConfig is the full configuration for a run.
type RunConfig struct {
	Tests     []catalog.Test
	Selection framework.Selection

	Threads          int
	Iterations       int
	ExpectedFailures int
	KeepGoing        bool
	DryRun           bool

	// Isolate controls whether tests run inside private virtual networks.
	// Without isolation, parallelism is clamped to one lane.
	Isolate  bool
	WifiMock bool

	MockServices []MockService
	AppCommands  map[string][]string
	ToolCommand  []string
	PicsFile     string
	Timeout      time.Duration
	LogDir       string

	// Env is the immutable base environment for every spawned command.
	Env []string

	Log        *logging.LevelLogger
	TestLogger framework.TestLogger

	// LogSink receives each test's merged log artifact after it completes.
	LogSink io.Writer
}

// Orchestrator drives the full run: per-iteration worker pools, namespace
// lifecycles, dispatch, and budget verification.
type Orchestrator struct {
	cfg        RunConfig
	dispatch   DispatchFunc
	provision  ProvisionFunc
	startMocks StartMocksFunc
}

func NewOrchestrator(cfg RunConfig) *Orchestrator {
	if cfg.TestLogger == nil {
		cfg.TestLogger = framework.NullTestLogger()
	}
	if cfg.Iterations < 1 {
		cfg.Iterations = 1
	}
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	o := &Orchestrator{cfg: cfg}
	dispatcher := &Dispatcher{
		Executable: exe,
		ChildFlag:  ChildFlag,
		LogDir:     cfg.LogDir,
		DryRun:     cfg.DryRun,
		Timeout:    cfg.Timeout,
		Env:        cfg.Env,
		Log:        cfg.Log,
	}
	o.dispatch = dispatcher.Dispatch
	o.provision = func(nsCfg netns.Config) (Sandbox, error) {
		return netns.Provision(nsCfg)
	}
	o.startMocks = func(services []MockService, sandbox Sandbox, env []string, log *logging.LevelLogger) (MockStopper, error) {
		group, err := StartServices(services, sandbox, env, log)
		if err != nil {
			return nil, err
		}
		return group, nil
	}
	return o
}

// abortState coordinates early termination across scheduling goroutines:
// stop-on-first-failure just closes the stop channel; fatal errors
// (provisioning, teardown, mock service stop) also record the error that
// ends the whole run.
type abortState struct {
	lock     sync.Mutex
	err      error
	stop     chan struct{}
	stopOnce sync.Once
}

func newAbortState() *abortState {
	return &abortState{stop: make(chan struct{})}
}

func (a *abortState) signalStop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *abortState) fail(err error) {
	a.lock.Lock()
	if a.err == nil {
		a.err = err
	}
	a.lock.Unlock()
	a.signalStop()
}

func (a *abortState) stopped() bool {
	select {
	case <-a.stop:
		return true
	default:
		return false
	}
}

func (a *abortState) Err() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.err
}

// Run executes every configured iteration and returns nil only if all of
// them met the expected-failure budget.
func (o *Orchestrator) Run() error {
	if o.cfg.ExpectedFailures != 0 && !o.cfg.KeepGoing {
		return ErrExpectedFailuresRequireKeepGoing
	}

	threads := o.cfg.Threads
	if threads < 1 || !o.cfg.Isolate {
		threads = 1
	}

	if err := os.MkdirAll(o.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	o.cfg.Log.Infof("Each test will be executed %d times", o.cfg.Iterations)

	for iteration := 1; iteration <= o.cfg.Iterations; iteration++ {
		o.cfg.Log.Infof("Starting iteration %d", iteration)
		if err := o.runIteration(iteration, threads); err != nil {
			return err
		}
	}
	return nil
}

// runIteration provisions a fresh worker pool and aggregator; nothing except
// cumulative logging carries over between iterations.
func (o *Orchestrator) runIteration(iteration, threads int) error {
	pool := NewSlotPool(threads)
	agg := NewAggregator(o.cfg.ExpectedFailures)
	abort := newAbortState()

	tests := make(chan catalog.Test)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for test := range tests {
				if abort.stopped() {
					continue
				}
				o.runOne(iteration, test, pool, agg, abort)
			}
		}()
	}
	for _, test := range o.cfg.Tests {
		tests <- test
	}
	close(tests)
	wg.Wait()

	if err := abort.Err(); err != nil {
		return err
	}

	summary := agg.Summary(iteration)
	o.cfg.Log.Infof("%s", summary)
	if !summary.BudgetMet() {
		o.cfg.Log.Errorf("Iteration %d: expected failure count %d, but got %d",
			iteration, summary.ExpectedFailures, summary.Failures)
		if o.cfg.ExpectedFailures != 0 {
			return &BudgetError{Summary: summary}
		}
		return fmt.Errorf("iteration %d: %d of %d tests failed",
			iteration, summary.Failures, summary.Total)
	}
	return nil
}

// runOne executes a single test on an acquired lane. The lane is always
// released and a created sandbox is always terminated exactly once, whatever
// the test outcome.
func (o *Orchestrator) runOne(iteration int, test catalog.Test, pool *SlotPool, agg *Aggregator, abort *abortState) {
	if reason := o.cfg.Selection.TagSkipReason(test); reason != "" {
		o.cfg.Log.Debugf("Test %s skipped (%s)", test.Name, reason)
		o.cfg.TestLogger.TestSkipped(test.Name, reason)
		agg.Record(framework.TestResult{Name: test.Name, Skipped: true, SkipReason: reason})
		return
	}

	slot := pool.Acquire()
	defer pool.Release(slot)

	var sandbox Sandbox
	suffix := ""
	if o.cfg.Isolate {
		appLinkName := "eth-app"
		if o.cfg.WifiMock {
			// Wireless-looking name so the app treats the link as WiFi.
			appLinkName = "wlx-app"
		}
		nsCfg := netns.Config{
			Suffix:      fmt.Sprintf("%d-%d", iteration, slot),
			AppLinkName: appLinkName,
			// With mock commissioning the app link comes up during the test
			// itself, not during provisioning.
			SetupAppLink:  !o.cfg.WifiMock,
			SetupToolLink: true,
			Runner:        netns.NewHostRunner(o.cfg.Env, o.cfg.Log.DebugWriter()),
			Log:           o.cfg.Log.DebugWriter(),
			Warn:          warnWriter{o.cfg.Log},
		}
		created, err := o.provision(nsCfg)
		if err != nil {
			abort.fail(fmt.Errorf("failed to provision isolated network: %w", err))
			return
		}
		sandbox = created
		suffix = sandbox.Suffix()
	}
	defer func() {
		if sandbox != nil {
			if err := sandbox.Terminate(); err != nil {
				abort.fail(fmt.Errorf("failed to tear down isolated network: %w", err))
			}
		}
	}()

	var mocks MockStopper
	if o.cfg.WifiMock && len(o.cfg.MockServices) > 0 {
		started, err := o.startMocks(o.cfg.MockServices, sandbox, o.cfg.Env, o.cfg.Log)
		if err != nil {
			abort.fail(err)
			return
		}
		mocks = started
	}
	// Mock services must be fully stopped before the first teardown command
	// runs, so this defer is registered after the teardown defer.
	defer func() {
		if mocks != nil {
			if err := mocks.Stop(); err != nil {
				abort.fail(err)
			}
		}
	}()

	o.cfg.TestLogger.TestStarted(test.Name)
	res := o.dispatch(ExecutionRequest{
		Test:            test,
		NamespaceSuffix: suffix,
		AppCommands:     o.cfg.AppCommands,
		ToolCommand:     o.cfg.ToolCommand,
		PicsFile:        o.cfg.PicsFile,
		TimeoutSeconds:  int(o.cfg.Timeout / time.Second),
	})

	result := framework.TestResult{
		Name:     test.Name,
		Failed:   !res.Passed,
		Err:      res.Err,
		Duration: res.Duration,
		LogFile:  res.LogFile,
	}
	agg.Record(result)
	o.cfg.TestLogger.TestFinished(result)
	o.surfaceLog(res.LogFile)

	if result.Failed && !o.cfg.KeepGoing {
		abort.signalStop()
	}
}

// surfaceLog copies a finished test's merged log artifact to the run's log
// sink for immediate operator visibility.
func (o *Orchestrator) surfaceLog(logFile string) {
	if logFile == "" || o.cfg.LogSink == nil {
		return
	}
	f, err := os.Open(logFile)
	if err != nil {
		o.cfg.Log.Warnf("Cannot read back log file %s: %s", logFile, err)
		return
	}
	defer f.Close()
	_, _ = io.Copy(o.cfg.LogSink, f)
}

type warnWriter struct {
	log *logging.LevelLogger
}

func (w warnWriter) Printf(message string, args ...interface{}) {
	w.log.Warnf(message, args...)
}
