// Package netns provisions the isolated virtual networks that conformance
// tests run inside: three network namespaces (application, controller tool,
// rpc) joined by a bridge, with deterministic IPv4 and IPv6 ULA addressing.
package netns

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/device-conformance/conformance-tests/logging"
)

// CommandRunner executes host commands on behalf of the namespace manager.
// The indirection exists so command plans can be verified without touching
// real kernel state.
type CommandRunner interface {
	Run(args ...string) error
	Output(args ...string) (string, error)
}

// HostRunner runs commands on the host with a fixed environment snapshot.
type HostRunner struct {
	Env []string
	Log logging.Logger
}

func NewHostRunner(env []string, log logging.Logger) *HostRunner {
	if log == nil {
		log = logging.NullLogger()
	}
	return &HostRunner{Env: env, Log: log}
}

func (h *HostRunner) Run(args ...string) error {
	h.Log.Printf("Executing: %s", shellescape.QuoteCommand(args))
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = h.Env
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("command %s failed: %w: %s", shellescape.QuoteCommand(args), err, detail)
		}
		return fmt.Errorf("command %s failed: %w", shellescape.QuoteCommand(args), err)
	}
	return nil
}

func (h *HostRunner) Output(args ...string) (string, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = h.Env
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("command %s failed: %w", shellescape.QuoteCommand(args), err)
	}
	return string(out), nil
}
