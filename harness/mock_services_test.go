package harness

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/device-conformance/conformance-tests/logging"
)

func TestServiceGroupStopsInReverseStartOrder(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLevelLogger(&buf, logging.Debug, false)

	group, err := StartServices([]MockService{
		{Name: "first", Command: []string{"sleep", "30"}},
		{Name: "second", Command: []string{"sleep", "30"}},
	}, nil, nil, log)
	require.NoError(t, err)
	require.NoError(t, group.Stop())

	output := buf.String()
	stopSecond := strings.Index(output, "Stopping mock service second")
	stopFirst := strings.Index(output, "Stopping mock service first")
	require.NotEqual(t, -1, stopSecond)
	require.NotEqual(t, -1, stopFirst)
	assert.Less(t, stopSecond, stopFirst, "services must stop in reverse start order")
}

func TestServiceGroupStartFailureCleansUpAndReports(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLevelLogger(&buf, logging.Debug, false)

	_, err := StartServices([]MockService{
		{Name: "ok", Command: []string{"sleep", "30"}},
		{Name: "broken", Command: []string{"definitely-not-a-real-binary-name"}},
	}, nil, nil, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, buf.String(), "Stopping mock service ok")
}

func TestServiceGroupStopToleratesAlreadyExitedService(t *testing.T) {
	log := logging.NewLevelLogger(&bytes.Buffer{}, logging.Debug, false)

	group, err := StartServices([]MockService{
		{Name: "short-lived", Command: []string{"true"}},
	}, nil, nil, log)
	require.NoError(t, err)

	// Give the process a moment to exit on its own.
	for _, cmd := range group.running {
		_ = cmd.Wait()
	}
	assert.NoError(t, group.Stop())
}
