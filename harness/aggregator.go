package harness

import (
	"sync"

	"github.com/device-conformance/conformance-tests/framework"
)

// Aggregator collects per-test outcomes for one iteration. Results arrive in
// completion order from multiple scheduling goroutines.
type Aggregator struct {
	lock             sync.Mutex
	results          framework.Results
	expectedFailures int
}

func NewAggregator(expectedFailures int) *Aggregator {
	return &Aggregator{expectedFailures: expectedFailures}
}

func (a *Aggregator) Record(result framework.TestResult) {
	a.lock.Lock()
	a.results.Record(result)
	a.lock.Unlock()
}

func (a *Aggregator) Results() framework.Results {
	a.lock.Lock()
	defer a.lock.Unlock()
	return framework.Results{
		Tests:    append([]framework.TestResult(nil), a.results.Tests...),
		Failures: append([]framework.TestResult(nil), a.results.Failures...),
	}
}

// Summary compares the iteration's observed failures to the expected budget.
func (a *Aggregator) Summary(iteration int) framework.Summary {
	a.lock.Lock()
	defer a.lock.Unlock()
	return framework.Summary{
		Iteration:        iteration,
		Total:            len(a.results.Tests),
		Failures:         a.results.FailureCount(),
		ExpectedFailures: a.expectedFailures,
	}
}
