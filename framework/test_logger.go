package framework

// TestLogger receives progress callbacks as tests are dispatched and
// completed. Implementations must tolerate concurrent calls: tests on
// different lanes finish in arbitrary order.
type TestLogger interface {
	TestStarted(name string)
	TestFinished(result TestResult)
	TestSkipped(name string, reason string)
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(string)         {}
func (n nullTestLogger) TestFinished(TestResult)    {}
func (n nullTestLogger) TestSkipped(string, string) {}

func NullTestLogger() TestLogger { return nullTestLogger{} }
