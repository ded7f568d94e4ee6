package harness

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/alessio/shellescape"

	"github.com/device-conformance/conformance-tests/logging"
	"github.com/device-conformance/conformance-tests/netns"
)

// MockService is one auxiliary process a test needs alongside the real
// applications, such as a virtual radio. Services with a Role run inside
// that partition of the sandbox; others run in the orchestrator's context.
type MockService struct {
	Name    string
	Role    netns.Role
	Command []string
}

// WifiMockServices are the auxiliary services for mock BLE-WiFi
// commissioning runs: a private system bus, a virtual bluetooth controller,
// and an access point bound to the app partition.
func WifiMockServices(ssid, passphrase string) []MockService {
	return []MockService{
		{Name: "system-bus", Command: []string{"dbus-daemon", "--system", "--nofork", "--nopidfile"}},
		{Name: "bluetooth-controller", Command: []string{"btvirt", "-l2"}},
		{Name: "access-point", Role: netns.RoleApp,
			Command: []string{"hostapd-mock", "--ssid", ssid, "--passphrase", passphrase}},
	}
}

// ServiceGroup owns the running mock services for one test. Services start
// only after the sandbox links are up and must be stopped, in reverse start
// order, strictly before namespace teardown begins: a service still holding
// a socket in a partition would make the veth deletes fail.
type ServiceGroup struct {
	log     *logging.LevelLogger
	names   []string
	running []*exec.Cmd
}

// StartServices launches the given services. On any start failure it stops
// what already started and reports the error, which is fatal to the run.
func StartServices(services []MockService, sandbox Sandbox, env []string, log *logging.LevelLogger) (*ServiceGroup, error) {
	g := &ServiceGroup{log: log}
	for _, service := range services {
		command := service.Command
		if service.Role != "" && sandbox != nil {
			command = sandbox.Wrap(service.Role, command)
		}
		log.Debugf("Starting mock service %s: %s", service.Name, shellescape.QuoteCommand(command))
		cmd := exec.Command(command[0], command[1:]...)
		cmd.Env = env
		if err := cmd.Start(); err != nil {
			_ = g.Stop()
			return nil, fmt.Errorf("failed to start mock service %s: %w", service.Name, err)
		}
		g.names = append(g.names, service.Name)
		g.running = append(g.running, cmd)
	}
	return g, nil
}

// Stop terminates the services in reverse start order. A stop failure is
// fatal to the run, not best-effort: a survivor would corrupt teardown.
func (g *ServiceGroup) Stop() error {
	var firstErr error
	for i := len(g.running) - 1; i >= 0; i-- {
		cmd := g.running[i]
		g.log.Debugf("Stopping mock service %s", g.names[i])
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop mock service %s: %w", g.names[i], err)
		}
		_ = cmd.Wait()
	}
	g.running = nil
	g.names = nil
	return firstErr
}
