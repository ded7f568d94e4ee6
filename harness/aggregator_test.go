package harness

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/device-conformance/conformance-tests/framework"
)

func TestAggregatorCountsFailuresAgainstBudget(t *testing.T) {
	agg := NewAggregator(1)
	agg.Record(framework.TestResult{Name: "a"})
	agg.Record(framework.TestResult{Name: "b", Failed: true})
	agg.Record(framework.TestResult{Name: "c", Skipped: true})

	summary := agg.Summary(1)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Failures)
	assert.True(t, summary.BudgetMet())
}

func TestAggregatorBudgetMismatchEitherDirection(t *testing.T) {
	for _, failures := range []int{1, 3} {
		agg := NewAggregator(2)
		for i := 0; i < failures; i++ {
			agg.Record(framework.TestResult{Name: "f", Failed: true})
		}
		assert.False(t, agg.Summary(1).BudgetMet(), "budget of 2 should not match %d failures", failures)
	}
}

func TestAggregatorIsSafeForConcurrentRecording(t *testing.T) {
	agg := NewAggregator(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				agg.Record(framework.TestResult{Name: "t", Failed: j%2 == 0})
			}
		}()
	}
	wg.Wait()

	results := agg.Results()
	assert.Len(t, results.Tests, 400)
	assert.Equal(t, 200, results.FailureCount())
}
