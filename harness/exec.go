package harness

import (
	"context"
	"os/exec"
	"syscall"
)

// commandContext builds an exec.Cmd whose child dies with the orchestrator.
// A leaked child would keep veth devices busy and break namespace teardown.
func commandContext(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
	return cmd
}
