package netns

import (
	"fmt"
	"strings"
	"time"

	"github.com/device-conformance/conformance-tests/logging"
)

// Role identifies one partition of the isolated network.
type Role string

const (
	RoleApp  Role = "app"
	RoleTool Role = "tool"
	RoleRPC  Role = "rpc"
)

// Deterministic addressing per partition. DHCP/SLAAC would make addresses
// vary across iterations, so every partition gets fixed values.
var linkAddrs = map[Role]string{
	RoleApp:  "10.10.10.1",
	RoleTool: "10.10.10.2",
	RoleRPC:  "10.10.10.5",
}

var linkAddrsIPv6 = map[Role]string{
	RoleApp:  "fd00:0:1:1::3",
	RoleTool: "fd00:0:1:1::2",
	RoleRPC:  "fd00:0:1:1::1",
}

const (
	dadPollInterval = 100 * time.Millisecond
	dadMaxPolls     = 100
)

// Config describes one isolated network to provision. Suffix must be unique
// among concurrently active namespaces; it is appended to every kernel object
// name to prevent collisions between lanes.
type Config struct {
	Suffix string

	// AppLinkName overrides the application-side interface name. Mock-wifi
	// runs use a "wlx-" prefix so the interface is treated as wireless.
	AppLinkName string

	// SetupAppLink and SetupToolLink control whether those links are brought
	// up during Provision. The rpc link always comes up.
	SetupAppLink  bool
	SetupToolLink bool

	Runner CommandRunner
	Log    logging.Logger
	Warn   logging.Logger
}

// Namespace is one provisioned three-partition virtual network. Instances are
// owned by a single lane and are not safe for concurrent use.
type Namespace struct {
	suffix      string
	appLinkName string
	runner      CommandRunner
	log         logging.Logger
	warn        logging.Logger
	dadInterval time.Duration

	created    bool
	terminated bool
}

func New(cfg Config) *Namespace {
	n := &Namespace{
		suffix:      cfg.Suffix,
		appLinkName: cfg.AppLinkName,
		runner:      cfg.Runner,
		log:         cfg.Log,
		warn:        cfg.Warn,
		dadInterval: dadPollInterval,
	}
	if n.appLinkName == "" {
		n.appLinkName = "eth-app"
	}
	if n.log == nil {
		n.log = logging.NullLogger()
	}
	if n.warn == nil {
		n.warn = n.log
	}
	return n
}

// Provision creates the namespaces, brings up the configured links, and
// waits for duplicate address detection to settle. On any command failure
// the run cannot continue; the returned error carries a privilege hint.
func Provision(cfg Config) (*Namespace, error) {
	n := New(cfg)
	if err := n.Create(); err != nil {
		return nil, err
	}
	if cfg.SetupAppLink {
		if err := n.BringUpLink(RoleApp); err != nil {
			return nil, err
		}
	}
	if cfg.SetupToolLink {
		if err := n.BringUpLink(RoleTool); err != nil {
			return nil, err
		}
	}
	if err := n.BringUpLink(RoleRPC); err != nil {
		return nil, err
	}
	n.WaitForAddresses()
	return n, nil
}

func (n *Namespace) Suffix() string { return n.suffix }

func (n *Namespace) nsName(role Role) string {
	return string(role) + "-" + n.suffix
}

func (n *Namespace) linkName(role Role) string {
	if role == RoleApp {
		return n.appLinkName + "-" + n.suffix
	}
	return "eth-" + string(role) + "-" + n.suffix
}

func (n *Namespace) switchLinkName(role Role) string {
	return "eth-" + string(role) + "-sw-" + n.suffix
}

func (n *Namespace) bridgeName() string {
	return "br1-" + n.suffix
}

// setupCommands is the full provisioning plan: namespaces, veth pairs, then
// the bridge joining the switch-side ends. Order matters; links can only be
// moved into a namespace that already exists, and the bridge must exist
// before ports are enslaved to it.
func (n *Namespace) setupCommands() [][]string {
	var cmds [][]string
	for _, role := range []Role{RoleApp, RoleTool, RoleRPC} {
		cmds = append(cmds, []string{"ip", "netns", "add", n.nsName(role)})
	}
	for _, role := range []Role{RoleApp, RoleTool, RoleRPC} {
		cmds = append(cmds, []string{
			"ip", "link", "add", n.linkName(role),
			"type", "veth", "peer", "name", n.switchLinkName(role),
		})
	}
	for _, role := range []Role{RoleApp, RoleTool, RoleRPC} {
		cmds = append(cmds, []string{"ip", "link", "set", n.linkName(role), "netns", n.nsName(role)})
	}
	cmds = append(cmds,
		[]string{"ip", "link", "add", "name", n.bridgeName(), "type", "bridge"},
		[]string{"ip", "link", "set", n.bridgeName(), "up"},
	)
	for _, role := range []Role{RoleApp, RoleTool, RoleRPC} {
		cmds = append(cmds, []string{"ip", "link", "set", n.switchLinkName(role), "master", n.bridgeName()})
	}
	return cmds
}

// linkUpCommands assigns the partition's fixed addresses and brings its
// interfaces up. Kernel-assigned IPv6 addresses are flushed first so the
// fixed ULA cannot collide with a SLAAC address.
func (n *Namespace) linkUpCommands(role Role) [][]string {
	ns := n.nsName(role)
	link := n.linkName(role)
	return [][]string{
		{"ip", "netns", "exec", ns, "ip", "addr", "add", linkAddrs[role] + "/24", "dev", link},
		{"ip", "netns", "exec", ns, "ip", "link", "set", "dev", link, "up"},
		{"ip", "netns", "exec", ns, "ip", "link", "set", "dev", "lo", "up"},
		{"ip", "link", "set", "dev", n.switchLinkName(role), "up"},
		{"ip", "netns", "exec", ns, "ip", "-6", "addr", "flush", link},
		{"ip", "netns", "exec", ns, "ip", "-6", "addr", "add", linkAddrsIPv6[role] + "/64", "dev", link},
	}
}

// terminateCommands tears everything down in strict reverse dependency
// order: bridge down, bridge deleted, switch-side veths deleted, then the
// namespaces themselves.
func (n *Namespace) terminateCommands() [][]string {
	cmds := [][]string{
		{"ip", "link", "set", n.bridgeName(), "down"},
		{"ip", "link", "delete", n.bridgeName()},
	}
	for _, role := range []Role{RoleRPC, RoleTool, RoleApp} {
		cmds = append(cmds, []string{"ip", "link", "delete", n.switchLinkName(role)})
	}
	for _, role := range []Role{RoleRPC, RoleTool, RoleApp} {
		cmds = append(cmds, []string{"ip", "netns", "del", n.nsName(role)})
	}
	return cmds
}

func (n *Namespace) runAll(cmds [][]string) error {
	for _, cmd := range cmds {
		if err := n.runner.Run(cmd...); err != nil {
			return fmt.Errorf("%w (are you using --privileged if running in docker?)", err)
		}
	}
	return nil
}

// Create provisions the namespaces, links, and bridge.
func (n *Namespace) Create() error {
	if n.created {
		return fmt.Errorf("namespace %s already created", n.suffix)
	}
	if err := n.runAll(n.setupCommands()); err != nil {
		return err
	}
	n.created = true
	return nil
}

// BringUpLink configures and raises one partition's link.
func (n *Namespace) BringUpLink(role Role) error {
	return n.runAll(n.linkUpCommands(role))
}

// WaitForAddresses blocks until no address on the host remains in the IPv6
// duplicate-address-detection "tentative" state, polling at a fixed interval.
// The wait is bounded: on timeout it warns and returns rather than blocking
// the run.
func (n *Namespace) WaitForAddresses() {
	n.log.Printf("Waiting for IPv6 DAD to complete (no tentative addresses)")
	for i := 0; i < dadMaxPolls; i++ {
		out, err := n.runner.Output("ip", "addr")
		if err == nil && !strings.Contains(out, "tentative") {
			n.log.Printf("No more tentative addresses")
			return
		}
		time.Sleep(n.dadInterval)
	}
	n.warn.Printf("Some addresses look to still be tentative")
}

// Terminate tears the namespace down. Any command failure is fatal to the
// whole run: a partial teardown leaves stale kernel objects that would
// corrupt later iterations.
func (n *Namespace) Terminate() error {
	if n.terminated {
		return nil
	}
	n.terminated = true
	return n.runAll(n.terminateCommands())
}

// Wrap prefixes command so that it executes inside the given partition's
// namespace. The command's own arguments are never modified.
func (n *Namespace) Wrap(role Role, command []string) []string {
	return WrapCommand(role, n.suffix, command)
}

// WrapCommand is the package-level form of Wrap, used by the child process
// which knows only the namespace suffix. An empty suffix means unisolated
// execution and returns the command unchanged.
func WrapCommand(role Role, suffix string, command []string) []string {
	if suffix == "" {
		return command
	}
	prefix := []string{"ip", "netns", "exec", string(role) + "-" + suffix}
	return append(prefix, command...)
}
