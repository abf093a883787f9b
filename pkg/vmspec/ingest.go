package vmspec

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidateName enforces the name-charset rule, reproducing the original
// CLI's exact error message so clients keep parsing it.
func ValidateName(entity, name string) error {
	if name == "" || !nameRE.MatchString(name) {
		return apierr.Invalidf("Invalid %s name '%s'. Only A-Z, a-z, 0-9 and '-' allowed", entity, name)
	}
	return nil
}

// MemMiB converts a byte count to MiB, rounding up, matching
// utils/validation.py's mem_mib ceiling-division behavior.
func MemMiB(bytesVal int64) int {
	return int((bytesVal + 1048575) / 1048576)
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func firstPositiveInt(def int, vals ...interface{}) int {
	for _, v := range vals {
		if n, ok := toInt(v); ok && n > 0 {
			return n
		}
	}
	return def
}

func toInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.Trunc(t) == t {
			return int(t), true
		}
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// resolveArtifactPath joins a CloudStack-supplied filename (kernel or
// image) against the host's kernel/image directory, falling back to a
// default filename when the payload supplied none.
func resolveArtifactPath(name, dir, defaultName string) string {
	if name == "" {
		name = defaultName
	}
	return filepath.Join(dir, name)
}

// vlanFromBroadcastURI parses "vlan://<id>" and returns the VLAN id.
func vlanFromBroadcastURI(uri string) (int, bool) {
	const prefix = "vlan://"
	if !strings.HasPrefix(uri, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExtractSSHPublicKey pulls cloudstack.vm.details.details["SSH.PublicKey"]
// out of the raw payload, mirroring
// utils/validation.py::extract_ssh_pubkey_from_payload exactly.
func ExtractSSHPublicKey(payload map[string]interface{}) string {
	vmDetails := asMap(payload["cloudstack.vm.details"])
	details := asMap(vmDetails["details"])
	key := toString(details["SSH.PublicKey"])
	return strings.TrimSpace(key)
}

// RawNameHint extracts a best-effort VM name candidate from a raw payload,
// mirroring Ingest's own name-resolution order but without validating it.
// Used to key the pre-parse payload persistence step, which must succeed
// even for a payload whose name will later fail validation.
func RawNameHint(payload map[string]interface{}) string {
	vmDetails := asMap(payload["cloudstack.vm.details"])
	name := toString(payload["vm_name"])
	if name == "" {
		name = toString(vmDetails["name"])
	}
	if name == "" {
		name = toString(vmDetails["uuid"])
	}
	return name
}

// Ingest turns a raw orchestrator JSON payload plus host defaults into a
// validated Spec. defaultStorageDriver/defaultNetDriver come from the
// agent config's defaults.storage.driver / defaults.net.driver.
func Ingest(payload map[string]interface{}, host HostDirs, defaultStorageDriver, defaultNetDriver, defaultBridge, defaultUplink string) (*Spec, error) {
	vmDetails := asMap(payload["cloudstack.vm.details"])
	ext := asMap(payload["externaldetails"])
	vmExt := asMap(ext["virtualmachine"])

	name := toString(payload["vm_name"])
	if name == "" {
		name = toString(vmDetails["name"])
	}
	if name == "" {
		name = toString(vmDetails["uuid"])
	}
	if err := ValidateName("VM", name); err != nil {
		return nil, err
	}

	cpus := firstPositiveInt(1, vmDetails["cpus"], vmDetails["cpu"])

	memBytes := int64(firstPositiveInt(512*1024*1024, vmDetails["maxRam"], vmDetails["minRam"], vmDetails["memory"]))
	memMiB := MemMiB(memBytes)

	nics, err := ingestNICs(vmDetails["nics"])
	if err != nil {
		return nil, err
	}

	storageDriver := toString(payload["storage_driver"])
	if storageDriver == "" {
		storageDriver = defaultStorageDriver
	}
	if storageDriver == "" {
		storageDriver = "file"
	}

	netDriver := toString(payload["net_driver"])
	if netDriver == "" {
		netDriver = defaultNetDriver
	}
	if netDriver == "" {
		netDriver = "linux-bridge-vlan"
	}

	kernel := resolveArtifactPath(toString(vmExt["kernel"]), host.KernelDir, "vmlinux.bin")
	image := resolveArtifactPath(toString(vmExt["image"]), host.ImageDir, "ubuntu-20.04.img")
	bootArgs := toString(vmExt["boot_args"])

	spec := &Spec{
		Name:     name,
		CPUs:     cpus,
		MemMiB:   memMiB,
		NICs:     nics,
		Kernel:   kernel,
		Image:    image,
		BootArgs: bootArgs,
		Storage: StorageSpec{
			Driver: storageDriver,
		},
		Net: NetSpec{
			Driver:     netDriver,
			HostBridge: defaultBridge,
			Uplink:     defaultUplink,
		},
		Host:      host,
		SSHPubKey: ExtractSSHPublicKey(payload),
		RawFCExtra: asMap(payload["fc_extra"]),
	}
	return spec, nil
}

func ingestNICs(raw interface{}) ([]NIC, error) {
	arr, _ := raw.([]interface{})
	seen := map[int]bool{}
	out := make([]NIC, 0, len(arr))
	for _, item := range arr {
		m := asMap(item)
		idx, _ := toInt(m["deviceId"])
		if seen[idx] {
			return nil, apierr.Invalidf("duplicate NIC deviceId %d", idx)
		}
		seen[idx] = true

		n := NIC{
			DeviceID:     idx,
			MAC:          toString(m["mac"]),
			IP:           toString(m["ip"]),
			Netmask:      toString(m["netmask"]),
			Gateway:      toString(m["gateway"]),
			BroadcastURI: toString(m["broadcastUri"]),
		}
		if vlanRaw, ok := m["vlan"]; ok {
			if v, ok := toInt(vlanRaw); ok {
				n.VLAN = &v
			}
		}
		if n.VLAN == nil && n.BroadcastURI != "" {
			if v, ok := vlanFromBroadcastURI(n.BroadcastURI); ok {
				n.VLAN = &v
			}
		}
		out = append(out, n)
	}
	return out, nil
}

// RequireVLAN validates that every NIC has a resolved VLAN id, as required
// by both networking backends. A missing VLAN is a dataplane-programming
// failure, not a malformed request (callers surface it as a
// NetworkingError, not InvalidArgument), since the payload itself may be
// perfectly well-formed for a driver that does not require VLANs.
func RequireVLAN(driver string, nics []NIC) error {
	for _, n := range nics {
		if n.VLAN == nil {
			return apierr.New(apierr.Networking, fmt.Sprintf("%s requires VLAN for deviceId %d but none resolved", driver, n.DeviceID))
		}
		if *n.VLAN < 1 || *n.VLAN > 4094 {
			return apierr.New(apierr.Networking, fmt.Sprintf("VLAN id %d for deviceId %d out of range 1-4094", *n.VLAN, n.DeviceID))
		}
	}
	return nil
}
