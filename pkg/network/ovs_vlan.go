package network

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
	"github.com/vishvananda/netlink"
)

// OvsVlanBackend attaches VM TAPs to an Open vSwitch bridge as access ports
// tagged with each NIC's VLAN, and aggregates the VLANs needed onto the
// uplink as 802.1Q trunk tags. Grounded on
// backend/networking/ovs_vlan.py::OvsVlanBackend.
//
// The original backend drives OVS through ovsdbapp's IDL connection; no
// Go OVSDB client ships in the reference pack, so this backend shells out
// to ovs-vsctl, the same CLI ovsdbapp itself wraps. See DESIGN.md.
type OvsVlanBackend struct {
	spec   *vmspec.Spec
	paths  vmspec.Paths
	log    logging.Logger
	bridge string
	uplink string
}

func (b *OvsVlanBackend) Prepare(ctx context.Context) ([]string, error) {
	if err := b.ensureBridge(ctx); err != nil {
		return nil, err
	}

	uplinkLink, _ := netlink.LinkByName(b.uplink)
	uplinkMTU := 0
	if uplinkLink != nil {
		uplinkMTU = uplinkLink.Attrs().MTU
	}
	if err := b.ensurePort(ctx, b.uplink); err != nil {
		return nil, err
	}

	var created []string
	vidsNeeded := map[int]bool{}
	for _, nic := range b.spec.NICs {
		if nic.MAC == "" {
			continue
		}
		tap := vmspec.TapName(nic.DeviceID, b.spec.Name)

		tapLink, err := ensureTap(tap, nic.MAC, uplinkMTU)
		if err != nil {
			return nil, apierr.Wrap(apierr.Networking, fmt.Sprintf("create TAP %s", tap), err)
		}

		vid, ok := vidFromBroadcastURI(nic.BroadcastURI, nic.VLAN)
		if !ok {
			return nil, apierr.Invalidf("ovs-vlan requires a VLAN for TAP (deviceId=%d)", nic.DeviceID)
		}
		vidsNeeded[vid] = true

		if err := b.ensurePort(ctx, tap); err != nil {
			return nil, err
		}
		b.setPortAccessTag(ctx, tap, vid, nic.DeviceID)

		if err := netlink.LinkSetUp(tapLink); err != nil {
			return nil, apierr.Wrap(apierr.Networking, fmt.Sprintf("bring up TAP %s", tap), err)
		}
		created = append(created, tap)
	}

	if b.uplink != "" && len(vidsNeeded) > 0 {
		var vids []int
		for v := range vidsNeeded {
			vids = append(vids, v)
		}
		b.addUplinkTrunks(ctx, vids)
	}

	b.log.Info(ctx, "ovs-vlan networking prepared", map[string]interface{}{"vm": b.spec.Name, "bridge": b.bridge, "taps": created})
	return created, nil
}

func (b *OvsVlanBackend) Teardown(ctx context.Context) {
	if !ovsAvailable(ctx) {
		return
	}

	var taps []string
	for _, nic := range b.spec.NICs {
		taps = append(taps, vmspec.TapName(nic.DeviceID, b.spec.Name))
	}
	if configFileExists(b.paths.ConfigFile) {
		taps = append(taps, firecrackerConfigTaps(b.paths.ConfigFile)...)
	}

	for _, tap := range dedupSorted(taps) {
		exec.CommandContext(ctx, "ovs-vsctl", "--if-exists", "del-port", b.bridge, tap).Run()
		if link, err := netlink.LinkByName(tap); err == nil {
			netlink.LinkSetDown(link)
			netlink.LinkDel(link)
		}
	}

	if b.uplink != "" {
		b.removeUnusedUplinkTrunks(ctx)
	}

	b.log.Info(ctx, "ovs-vlan networking torn down", map[string]interface{}{"vm": b.spec.Name, "bridge": b.bridge})
}

func ovsAvailable(ctx context.Context) bool {
	err := exec.CommandContext(ctx, "ovs-vsctl", "show").Run()
	return err == nil
}

func (b *OvsVlanBackend) ensureBridge(ctx context.Context) error {
	if !ovsAvailable(ctx) {
		return apierr.Wrap(apierr.Networking, "OVS not available", fmt.Errorf("ovs-vsctl not usable; is openvswitch-switch installed and running?"))
	}
	if err := exec.CommandContext(ctx, "ovs-vsctl", "br-exists", b.bridge).Run(); err == nil {
		return nil
	}
	if out, err := exec.CommandContext(ctx, "ovs-vsctl", "add-br", b.bridge).CombinedOutput(); err != nil {
		return apierr.Wrap(apierr.Networking, fmt.Sprintf("create OVS bridge %s: %s", b.bridge, strings.TrimSpace(string(out))), err)
	}
	return nil
}

func (b *OvsVlanBackend) ensurePort(ctx context.Context, port string) error {
	if port == "" {
		return nil
	}
	if err := exec.CommandContext(ctx, "ovs-vsctl", "--", "port-to-br", port).Run(); err == nil {
		return nil
	}
	if out, err := exec.CommandContext(ctx, "ovs-vsctl", "add-port", b.bridge, port).CombinedOutput(); err != nil {
		return apierr.Wrap(apierr.Networking, fmt.Sprintf("add port %s to bridge %s: %s", port, b.bridge, strings.TrimSpace(string(out))), err)
	}
	return nil
}

// setPortAccessTag forces an OVS port into access mode with the given VLAN
// tag and records the owning VM name and device id as external-ids so OVS
// port introspection can recover the device identity, grounded on
// ovs_vlan.py::_set_port_tag.
func (b *OvsVlanBackend) setPortAccessTag(ctx context.Context, port string, vid, deviceID int) {
	exec.CommandContext(ctx, "ovs-vsctl", "set", "port", port, "tag="+strconv.Itoa(vid), "vlan_mode=access").Run()
	exec.CommandContext(ctx, "ovs-vsctl", "set", "port", port,
		fmt.Sprintf("external-ids:fc_vm_name=%s", b.spec.Name)).Run()
	exec.CommandContext(ctx, "ovs-vsctl", "set", "port", port,
		fmt.Sprintf("external-ids:fc_device_id=%d", deviceID)).Run()
}

// addUplinkTrunks adds the given VLANs to the uplink's trunk set,
// additive over whatever is already configured, grounded on
// ovs_vlan.py::_add_uplink_trunks.
func (b *OvsVlanBackend) addUplinkTrunks(ctx context.Context, vids []int) {
	current := b.uplinkTrunks(ctx)
	merged := map[int]bool{}
	for _, v := range current {
		merged[v] = true
	}
	for _, v := range vids {
		merged[v] = true
	}
	b.applyUplinkTrunks(ctx, merged)
}

// removeUnusedUplinkTrunks drops VLANs from the uplink trunk that are not
// the access tag of any port in the OVS database (ports on every bridge
// count, not only this bridge's TAPs), grounded on
// ovs_vlan.py::_remove_unused_uplink_trunks.
func (b *OvsVlanBackend) removeUnusedUplinkTrunks(ctx context.Context) {
	inUse := map[int]bool{}
	for _, tag := range b.bridgePortTags(ctx) {
		inUse[tag] = true
	}
	current := map[int]bool{}
	for _, v := range b.uplinkTrunks(ctx) {
		if inUse[v] {
			current[v] = true
		}
	}
	b.applyUplinkTrunks(ctx, current)
}

func (b *OvsVlanBackend) applyUplinkTrunks(ctx context.Context, vids map[int]bool) {
	exec.CommandContext(ctx, "ovs-vsctl", "remove", "port", b.uplink, "tag", "").Run()
	exec.CommandContext(ctx, "ovs-vsctl", "set", "port", b.uplink, "vlan_mode=trunk").Run()
	if len(vids) == 0 {
		exec.CommandContext(ctx, "ovs-vsctl", "clear", "port", b.uplink, "trunks").Run()
		return
	}
	var parts []string
	for v := range vids {
		parts = append(parts, strconv.Itoa(v))
	}
	exec.CommandContext(ctx, "ovs-vsctl", "set", "port", b.uplink, "trunks="+strings.Join(parts, ",")).Run()
}

func (b *OvsVlanBackend) uplinkTrunks(ctx context.Context) []int {
	out, err := exec.CommandContext(ctx, "ovs-vsctl", "get", "port", b.uplink, "trunks").Output()
	if err != nil {
		return nil
	}
	return parseOVSIntSet(string(out))
}

func (b *OvsVlanBackend) bridgePortTags(ctx context.Context) []int {
	out, err := exec.CommandContext(ctx, "ovs-vsctl", "--columns=tag", "--format=csv", "list", "port").Output()
	if err != nil {
		return nil
	}
	var tags []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if v, err := strconv.Atoi(line); err == nil {
			tags = append(tags, v)
		}
	}
	return tags
}

// parseOVSIntSet parses ovs-vsctl's "[]" / "1" / "1,2,3" set syntax.
func parseOVSIntSet(s string) []int {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if v, err := strconv.Atoi(part); err == nil {
			out = append(out, v)
		}
	}
	return out
}
