package netns

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/device-conformance/conformance-tests/logging"
)

// RunningAsRoot is the capability probe for namespace creation: network
// namespace and mount operations require an effective uid of 0, whether from
// real root or from a user namespace with a root mapping.
func RunningAsRoot() bool {
	return os.Geteuid() == 0
}

// ReexecInUnshare replaces the current process image with the same command
// line running under a freshly unshared network+mount namespace with the
// current user mapped to root. markerFlag is forwarded ahead of the original
// arguments so the restarted process knows not to re-exec again. On success
// this never returns.
func ReexecInUnshare(markerFlag string, env []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot determine own executable path: %w", err)
	}
	unsharePath, err := exec.LookPath("unshare")
	if err != nil {
		return fmt.Errorf("cannot find the unshare command: %w", err)
	}
	argv := append([]string{"unshare", "--map-root-user", "-n", "-m", self, markerFlag}, os.Args[1:]...)
	return unix.Exec(unsharePath, argv, env)
}

// EnsurePrivateMounts prepares the freshly unshared context: mount events
// must not propagate back to the host, and /run needs a private tmpfs so the
// `ip netns` bookkeeping under /run/netns stays local to this process tree.
func EnsurePrivateMounts(log logging.Logger) error {
	log.Printf("Making / private")
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("failed to make / private: %w (are you using --privileged if running in docker?)", err)
	}
	log.Printf("Remounting /run")
	if err := unix.Mount("tmpfs", "/run", "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("failed to mount /run as a temporary filesystem: %w (are you using --privileged if running in docker?)", err)
	}
	return nil
}

// EnsureIsolationAvailable makes sure the process can create network
// namespaces, re-execing itself under unshare if it cannot. Called once at
// startup, before any worker is started.
func EnsureIsolationAvailable(inUnshare bool, markerFlag string, env []string, log *logging.LevelLogger) error {
	if inUnshare {
		log.Infof("Ensuring /run is privately accessible")
		return EnsurePrivateMounts(log.DebugWriter())
	}
	if RunningAsRoot() {
		log.Debugf("Current user is root")
		log.Warnf("Running as root: namespace changes will affect global host state")
		return nil
	}
	if err := ReexecInUnshare(markerFlag, env); err != nil {
		return fmt.Errorf("failed to restart under unshare: %w", err)
	}
	return nil
}
