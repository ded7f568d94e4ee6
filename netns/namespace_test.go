package netns

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/device-conformance/conformance-tests/logging"
)

type fakeRunner struct {
	commands  [][]string
	failOn    string
	ipAddrOut string
	outCalls  int
}

func (f *fakeRunner) Run(args ...string) error {
	f.commands = append(f.commands, args)
	if f.failOn != "" && strings.Contains(strings.Join(args, " "), f.failOn) {
		return errors.New("exit status 1")
	}
	return nil
}

func (f *fakeRunner) Output(args ...string) (string, error) {
	f.outCalls++
	return f.ipAddrOut, nil
}

func (f *fakeRunner) commandLines() []string {
	var lines []string
	for _, cmd := range f.commands {
		lines = append(lines, strings.Join(cmd, " "))
	}
	return lines
}

func newTestNamespace(runner *fakeRunner, suffix string) *Namespace {
	n := New(Config{Suffix: suffix, Runner: runner})
	n.dadInterval = 0
	return n
}

func TestCreateIssuesSetupCommandsInDependencyOrder(t *testing.T) {
	runner := &fakeRunner{}
	n := newTestNamespace(runner, "7")
	require.NoError(t, n.Create())

	assert.Equal(t, []string{
		"ip netns add app-7",
		"ip netns add tool-7",
		"ip netns add rpc-7",
		"ip link add eth-app-7 type veth peer name eth-app-sw-7",
		"ip link add eth-tool-7 type veth peer name eth-tool-sw-7",
		"ip link add eth-rpc-7 type veth peer name eth-rpc-sw-7",
		"ip link set eth-app-7 netns app-7",
		"ip link set eth-tool-7 netns tool-7",
		"ip link set eth-rpc-7 netns rpc-7",
		"ip link add name br1-7 type bridge",
		"ip link set br1-7 up",
		"ip link set eth-app-sw-7 master br1-7",
		"ip link set eth-tool-sw-7 master br1-7",
		"ip link set eth-rpc-sw-7 master br1-7",
	}, runner.commandLines())
}

func TestBringUpLinkAssignsFixedAddressesAndFlushesIPv6(t *testing.T) {
	runner := &fakeRunner{}
	n := newTestNamespace(runner, "7")
	require.NoError(t, n.BringUpLink(RoleApp))

	assert.Equal(t, []string{
		"ip netns exec app-7 ip addr add 10.10.10.1/24 dev eth-app-7",
		"ip netns exec app-7 ip link set dev eth-app-7 up",
		"ip netns exec app-7 ip link set dev lo up",
		"ip link set dev eth-app-sw-7 up",
		"ip netns exec app-7 ip -6 addr flush eth-app-7",
		"ip netns exec app-7 ip -6 addr add fd00:0:1:1::3/64 dev eth-app-7",
	}, runner.commandLines())
}

func TestBringUpLinkHonorsWirelessAppLinkName(t *testing.T) {
	runner := &fakeRunner{}
	n := New(Config{Suffix: "3", AppLinkName: "wlx-app", Runner: runner})
	require.NoError(t, n.BringUpLink(RoleApp))

	for _, line := range runner.commandLines() {
		assert.NotContains(t, line, "eth-app-3")
	}
	assert.Contains(t, runner.commandLines()[0], "wlx-app-3")
}

func TestTerminateRunsStrictReverseDependencyOrder(t *testing.T) {
	runner := &fakeRunner{}
	n := newTestNamespace(runner, "7")
	require.NoError(t, n.Create())
	runner.commands = nil

	require.NoError(t, n.Terminate())
	assert.Equal(t, []string{
		"ip link set br1-7 down",
		"ip link delete br1-7",
		"ip link delete eth-rpc-sw-7",
		"ip link delete eth-tool-sw-7",
		"ip link delete eth-app-sw-7",
		"ip netns del rpc-7",
		"ip netns del tool-7",
		"ip netns del app-7",
	}, runner.commandLines())
}

func TestTerminateRunsOnlyOnce(t *testing.T) {
	runner := &fakeRunner{}
	n := newTestNamespace(runner, "7")
	require.NoError(t, n.Terminate())
	issued := len(runner.commands)

	require.NoError(t, n.Terminate())
	assert.Equal(t, issued, len(runner.commands), "second terminate must issue no commands")
}

func TestAllKernelObjectNamesCarryTheSuffix(t *testing.T) {
	runner := &fakeRunner{ipAddrOut: "inet 10.10.10.1/24 scope global"}
	_, err := Provision(Config{
		Suffix:        "2-1",
		SetupAppLink:  true,
		SetupToolLink: true,
		Runner:        runner,
	})
	require.NoError(t, err)

	for _, line := range runner.commandLines() {
		assert.Contains(t, line, "-2-1", "command %q must reference suffixed objects only", line)
	}
}

func TestProvisionCanDeferAppLink(t *testing.T) {
	runner := &fakeRunner{ipAddrOut: "inet 10.10.10.2/24 scope global"}
	_, err := Provision(Config{
		Suffix:        "4",
		SetupToolLink: true,
		Runner:        runner,
	})
	require.NoError(t, err)

	for _, line := range runner.commandLines() {
		assert.NotContains(t, line, "10.10.10.1", "app link must not come up when deferred")
	}
}

func TestProvisioningFailureCarriesPrivilegeHint(t *testing.T) {
	runner := &fakeRunner{failOn: "netns add tool-7"}
	n := newTestNamespace(runner, "7")

	err := n.Create()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--privileged")
}

func TestWaitForAddressesReturnsOnceNothingIsTentative(t *testing.T) {
	runner := &fakeRunner{ipAddrOut: "inet6 fd00:0:1:1::3/64 scope global"}
	n := newTestNamespace(runner, "7")

	n.WaitForAddresses()
	assert.Equal(t, 1, runner.outCalls)
}

func TestWaitForAddressesIsBounded(t *testing.T) {
	runner := &fakeRunner{ipAddrOut: "inet6 fd00:0:1:1::3/64 scope global tentative"}
	var warnings logging.CapturingLogger
	n := New(Config{Suffix: "7", Runner: runner, Warn: &warnings})
	n.dadInterval = 0

	n.WaitForAddresses()
	assert.Equal(t, dadMaxPolls, runner.outCalls)
	require.Len(t, warnings.Output(), 1)
	assert.Contains(t, warnings.Output()[0].Message, "tentative")
}

func TestWrapPrefixesExecutionContextOnly(t *testing.T) {
	n := newTestNamespace(&fakeRunner{}, "7")

	command := []string{"python3", "conformance-tool.py", "--option", "a b"}
	wrapped := n.Wrap(RoleTool, command)
	assert.Equal(t, []string{"ip", "netns", "exec", "tool-7", "python3", "conformance-tool.py", "--option", "a b"}, wrapped)
	assert.Equal(t, []string{"python3", "conformance-tool.py", "--option", "a b"}, command, "original command must be untouched")
}

func TestWrapCommandWithoutSuffixIsPassthrough(t *testing.T) {
	command := []string{"app-binary", "--flag"}
	assert.Equal(t, command, WrapCommand(RoleApp, "", command))
}
