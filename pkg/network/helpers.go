package network

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
)

var vlanURIRe = regexp.MustCompile(`^vlan://(\d+)$`)

// vidFromBroadcastURI extracts a VLAN ID from a "vlan://<id>" broadcastUri,
// grounded on helpers.py::vid_from_buri. A NIC's explicit VLAN field wins
// over the URI when both are present.
func vidFromBroadcastURI(broadcastURI string, explicit *int) (int, bool) {
	if explicit != nil {
		return *explicit, true
	}
	m := vlanURIRe.FindStringSubmatch(broadcastURI)
	if m == nil {
		return 0, false
	}
	vid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return vid, true
}

// detectUplink guesses the non-TAP port enslaved to a bridge, grounded on
// helpers.py::detect_uplink: it walks /sys/class/net/<bridge>/brif and
// returns the first entry that isn't a TAP (f<id>-... name).
func detectUplink(bridge string) string {
	entries, err := os.ReadDir("/sys/class/net/" + bridge + "/brif")
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	tapPrefix := regexp.MustCompile(`^f\d+-`)
	for _, name := range names {
		if tapPrefix.MatchString(name) {
			continue
		}
		return name
	}
	return ""
}

// bridgeTapPorts returns the TAP-like ports (f<id>-*) enslaved to bridge,
// grounded on helpers.py::bridge_tap_ports.
func bridgeTapPorts(bridge string) []string {
	entries, err := os.ReadDir("/sys/class/net/" + bridge + "/brif")
	if err != nil {
		return nil
	}
	tapPrefix := regexp.MustCompile(`^f\d+-`)
	var ports []string
	for _, e := range entries {
		if tapPrefix.MatchString(e.Name()) {
			ports = append(ports, e.Name())
		}
	}
	sort.Strings(ports)
	return ports
}

// portVIDs shells out to `bridge -j vlan show dev <dev>` to read the VLAN
// IDs currently assigned to a port, grounded on helpers.py::port_vids.
func portVIDs(ctx context.Context, dev string) map[int]bool {
	out, err := exec.CommandContext(ctx, "bridge", "-j", "vlan", "show", "dev", dev).Output()
	vids := map[int]bool{}
	if err != nil {
		return vids
	}
	var entries []struct {
		Vlans []struct {
			Vlan int `json:"vlan"`
		} `json:"vlans"`
	}
	if err := json.Unmarshal(out, &entries); err != nil {
		return vids
	}
	for _, e := range entries {
		for _, v := range e.Vlans {
			vids[v.Vlan] = true
		}
	}
	return vids
}

// configureBridgePortFlags enables learning/flood/mcast_flood/bcast_flood
// and disables neigh_suppress on a bridge port, grounded on
// helpers.py::configure_bridge_port_flags.
func configureBridgePortFlags(ctx context.Context, dev string) {
	exec.CommandContext(ctx, "bridge", "link", "set", "dev", dev,
		"learning", "on", "flood", "on", "mcast_flood", "on",
		"neigh_suppress", "off", "bcast_flood", "on").Run()
}

// cleanupUplinkVLANs removes VLAN IDs from the uplink trunk that no TAP on
// the bridge uses any more, grounded on helpers.py::cleanup_uplink_vlans.
func cleanupUplinkVLANs(ctx context.Context, bridge, uplink string) {
	uplinkVIDs := portVIDs(ctx, uplink)
	inUse := map[int]bool{}
	for _, port := range bridgeTapPorts(bridge) {
		for vid := range portVIDs(ctx, port) {
			if vid != 1 {
				inUse[vid] = true
			}
		}
	}
	for vid := range uplinkVIDs {
		if vid == 1 || inUse[vid] {
			continue
		}
		exec.CommandContext(ctx, "bridge", "vlan", "del", "dev", uplink, "vid", strconv.Itoa(vid)).Run()
	}
}

// firecrackerConfigTaps reads host_dev_name out of a saved Firecracker JSON
// config, the ground-truth source of TAP names teardown must also
// consider (a VM's NICs may have changed since create, but the config file
// records what Firecracker was actually told to attach).
func firecrackerConfigTaps(configFile string) []string {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil
	}
	var cfg struct {
		NetworkInterfaces []struct {
			HostDevName string `json:"host_dev_name"`
		} `json:"network-interfaces"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	var taps []string
	for _, ni := range cfg.NetworkInterfaces {
		if ni.HostDevName != "" {
			taps = append(taps, ni.HostDevName)
		}
	}
	return taps
}

func dedupSorted(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

func configFileExists(configFile string) bool {
	_, err := os.Stat(configFile)
	return err == nil
}
