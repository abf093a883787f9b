package network

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// fdbEntryLifetime is how long a primed FDB entry survives before cleanup,
// grounded on helpers.py::setup_fdb_entry's threading.Timer(8.0, ...).
const fdbEntryLifetime = 8 * time.Second

// LinuxBridgeVlanBackend attaches VM TAPs to a VLAN-filtering Linux bridge,
// tagging each port with its VLAN as PVID+untagged and (when the uplink is
// itself a bridge port) tagging the VLAN onto the uplink trunk. Grounded on
// backend/networking/linux_bridge_vlan.py.
type LinuxBridgeVlanBackend struct {
	spec   *vmspec.Spec
	paths  vmspec.Paths
	log    logging.Logger
	bridge string
	uplink string
}

func (b *LinuxBridgeVlanBackend) resolvedUplink() string {
	if b.uplink != "" {
		return b.uplink
	}
	return detectUplink(b.bridge)
}

func (b *LinuxBridgeVlanBackend) uplinkIsBridgePort(uplink string) bool {
	if uplink == "" {
		return false
	}
	link, err := netlink.LinkByName(uplink)
	if err != nil {
		return false
	}
	return link.Attrs().MasterIndex > 0
}

func (b *LinuxBridgeVlanBackend) Prepare(ctx context.Context) ([]string, error) {
	uplink := b.resolvedUplink()

	brLink, err := netlink.LinkByName(b.bridge)
	if err != nil {
		return nil, apierr.Wrap(apierr.Networking, fmt.Sprintf("bridge not found: %s", b.bridge), err)
	}

	var uplinkLink netlink.Link
	if uplink != "" {
		uplinkLink, _ = netlink.LinkByName(uplink)
	}
	uplinkMTU := 0
	if uplinkLink != nil {
		uplinkMTU = uplinkLink.Attrs().MTU
	}
	uplinkIsPort := b.uplinkIsBridgePort(uplink)

	var created []string
	for _, nic := range b.spec.NICs {
		if nic.MAC == "" {
			continue
		}
		tap := vmspec.TapName(nic.DeviceID, b.spec.Name)

		tapLink, err := ensureTap(tap, nic.MAC, uplinkMTU)
		if err != nil {
			return nil, apierr.Wrap(apierr.Networking, fmt.Sprintf("create TAP %s", tap), err)
		}

		if err := netlink.LinkSetMaster(tapLink, brLink); err != nil {
			return nil, apierr.Wrap(apierr.Networking, fmt.Sprintf("attach TAP %s to bridge %s", tap, b.bridge), err)
		}

		vid, ok := vidFromBroadcastURI(nic.BroadcastURI, nic.VLAN)
		if !ok {
			return nil, apierr.Invalidf("linux-bridge-vlan requires a VLAN for TAP (deviceId=%d)", nic.DeviceID)
		}

		netlink.BridgeVlanDel(tapLink, 1, true, true, true, false)
		if err := netlink.BridgeVlanAdd(tapLink, uint16(vid), true, true, true, false); err != nil {
			b.log.Warn(ctx, "failed to set PVID on TAP", map[string]interface{}{"tap": tap, "vlan": vid, "error": err.Error()})
		}
		if uplinkLink != nil && uplinkIsPort {
			if err := netlink.BridgeVlanAdd(uplinkLink, uint16(vid), false, false, true, false); err != nil {
				b.log.Warn(ctx, "failed to tag uplink with VLAN", map[string]interface{}{"uplink": uplink, "vlan": vid, "error": err.Error()})
			}
		}

		configureBridgePortFlags(ctx, tap)
		if uplinkLink != nil && uplinkIsPort {
			configureBridgePortFlags(ctx, uplink)
		}

		if err := netlink.LinkSetUp(tapLink); err != nil {
			return nil, apierr.Wrap(apierr.Networking, fmt.Sprintf("bring up TAP %s", tap), err)
		}

		primeFDB(ctx, tapLink.Attrs().Index, tap, nic.MAC, vid)

		created = append(created, tap)
	}

	b.log.Info(ctx, "linux-bridge-vlan networking prepared", map[string]interface{}{"vm": b.spec.Name, "bridge": b.bridge, "taps": created})
	return created, nil
}

func (b *LinuxBridgeVlanBackend) Teardown(ctx context.Context) {
	var taps []string
	for _, nic := range b.spec.NICs {
		taps = append(taps, vmspec.TapName(nic.DeviceID, b.spec.Name))
	}
	if configFileExists(b.paths.ConfigFile) {
		taps = append(taps, firecrackerConfigTaps(b.paths.ConfigFile)...)
	}

	for _, tap := range dedupSorted(taps) {
		link, err := netlink.LinkByName(tap)
		if err != nil {
			continue
		}
		netlink.LinkSetDown(link)
		netlink.LinkSetNoMaster(link)
		if err := netlink.LinkDel(link); err != nil {
			b.log.Warn(ctx, "failed to delete TAP", map[string]interface{}{"tap": tap, "error": err.Error()})
		}
	}

	if uplink := b.resolvedUplink(); uplink != "" {
		cleanupUplinkVLANs(ctx, b.bridge, uplink)
	}

	b.log.Info(ctx, "linux-bridge-vlan networking torn down", map[string]interface{}{"vm": b.spec.Name, "bridge": b.bridge})
}

// ensureTap creates the TAP device if missing, then sets its MAC and (if
// known) the uplink's MTU to avoid fragmentation. The link is left down;
// the caller brings it up once VLAN membership is programmed.
func ensureTap(name, mac string, mtu int) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		tuntap := &netlink.Tuntap{
			LinkAttrs: netlink.LinkAttrs{Name: name},
			Mode:      netlink.TUNTAP_MODE_TAP,
		}
		if err := netlink.LinkAdd(tuntap); err != nil {
			return nil, err
		}
		link, err = netlink.LinkByName(name)
		if err != nil {
			return nil, err
		}
	}

	netlink.LinkSetDown(link)
	hw, err := parseMAC(mac)
	if err != nil {
		return nil, err
	}
	if err := netlink.LinkSetHardwareAddr(link, hw); err != nil {
		return nil, err
	}
	if mtu > 0 {
		netlink.LinkSetMTU(link, mtu)
	}
	return link, nil
}

// primeFDB installs a permanent bridge FDB entry for the TAP's MAC so the
// first unicast DHCP reply can reach it before the guest's own traffic
// trains the bridge, then removes it after fdbEntryLifetime. It primes the
// entry through both the netlink neighbor table and the "bridge fdb"
// userland tool, since kernel/driver FDB-lookup quirks can make either
// path the one that actually takes. Grounded on
// helpers.py::setup_fdb_entry / setup_fdb_entry_bridge.
func primeFDB(ctx context.Context, ifindex int, tap, mac string, vid int) {
	hw, err := parseMAC(mac)
	if err != nil {
		return
	}
	neigh := &netlink.Neigh{
		LinkIndex:    ifindex,
		Family:       unix.AF_BRIDGE,
		State:        netlink.NUD_PERMANENT,
		Flags:        netlink.NTF_SELF,
		HardwareAddr: hw,
		Vlan:         vid,
	}
	if err := netlink.NeighAppend(neigh); err == nil {
		time.AfterFunc(fdbEntryLifetime, func() {
			netlink.NeighDel(neigh)
		})
	}

	vidStr := strconv.Itoa(vid)
	exec.CommandContext(ctx, "bridge", "fdb", "replace", mac, "dev", tap,
		"master", "vlan", vidStr, "static").Run()
	time.AfterFunc(fdbEntryLifetime, func() {
		exec.Command("bridge", "fdb", "del", mac, "dev", tap,
			"master", "vlan", vidStr, "static").Run()
	})
}
