package framework

import (
	"fmt"
	"time"
)

// TestResult is the outcome of one dispatched test. Exactly one TestResult is
// recorded per test that survives selection, whether it ran, failed, or was
// skipped by tag criteria.
type TestResult struct {
	Name       string
	Failed     bool
	Skipped    bool
	SkipReason string
	Err        error
	Duration   time.Duration
	LogFile    string
}

// Results accumulates the outcomes of one iteration.
type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

func (r *Results) Record(result TestResult) {
	r.Tests = append(r.Tests, result)
	if result.Failed {
		r.Failures = append(r.Failures, result)
	}
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

func (r Results) FailureCount() int {
	return len(r.Failures)
}

// Summary compares one iteration's observed failures against the configured
// expected-failure budget. The iteration succeeds only on an exact match.
type Summary struct {
	Iteration        int
	Total            int
	Failures         int
	ExpectedFailures int
}

func (s Summary) BudgetMet() bool {
	return s.Failures == s.ExpectedFailures
}

func (s Summary) String() string {
	return fmt.Sprintf("iteration %d: %d tests, %d failures (expected %d)",
		s.Iteration, s.Total, s.Failures, s.ExpectedFailures)
}
