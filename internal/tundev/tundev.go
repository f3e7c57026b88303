// Package tundev brings up the TUN device this stack reads frames
// from and writes responses to, adapting the teacher's setupTUN (and
// day52's NewTUN sibling for the Linux "ip addr"/"ip link" bring-up
// sequence) to the single hardcoded device spec §6 names.
package tundev

import (
	"fmt"
	"os/exec"

	"github.com/songgao/water"

	"github.com/daniel-mccarthy16/wtfistcp/internal/netlog"
	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
)

// DeviceName is the TUN interface name spec §6 requires: the process
// takes no CLI flags, so this is a constant, not configuration.
const DeviceName = "mytun"

// LocalAddress and PeerAddress describe the point-to-point link used
// to bring the interface up. They mirror the teacher's test harness
// addressing (10.0.0.1 local / 10.0.0.2 peer) so the acceptance
// scenarios in spec §8 (src 10.0.0.2 -> dst 10.0.0.1) exercise a live
// interface unmodified.
const (
	LocalAddress = "10.0.0.1"
	PeerAddress  = "10.0.0.2"
	SubnetMask   = "255.255.255.0"
	MTU          = 1500
)

// Open creates the TUN device named DeviceName and brings it up via
// "ip addr"/"ip link" (Linux only — this stack's TUN packet-info
// framing in spec §6 is the Linux IFF_TUN format, so cross-platform
// bring-up like the teacher's ifconfig path is out of scope here).
func Open() (*water.Interface, error) {
	config := water.Config{DeviceType: water.TUN}
	config.PlatformSpecificParams.Name = DeviceName

	ifce, err := water.New(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create TUN device %s: %v", stackerr.ErrFatalStartup, DeviceName, err)
	}
	actualName := ifce.Name()
	netlog.Info("tun: created device %q", actualName)

	cidr := LocalAddress + "/24"
	if err := run("ip", "addr", "add", cidr, "dev", actualName); err != nil {
		_ = ifce.Close()
		return nil, fmt.Errorf("%w: failed to set address on %s: %v", stackerr.ErrFatalStartup, actualName, err)
	}
	if err := run("ip", "link", "set", "dev", actualName, "mtu", fmt.Sprintf("%d", MTU)); err != nil {
		_ = ifce.Close()
		return nil, fmt.Errorf("%w: failed to set MTU on %s: %v", stackerr.ErrFatalStartup, actualName, err)
	}
	if err := run("ip", "link", "set", "dev", actualName, "up"); err != nil {
		_ = ifce.Close()
		return nil, fmt.Errorf("%w: failed to bring up %s: %v", stackerr.ErrFatalStartup, actualName, err)
	}

	netlog.Info("tun: %s up with address %s, peer %s, mtu %d", actualName, LocalAddress, PeerAddress, MTU)
	return ifce, nil
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w (output: %s)", name, args, err, string(output))
	}
	return nil
}
