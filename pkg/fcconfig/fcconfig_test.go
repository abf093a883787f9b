package fcconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	kernel := filepath.Join(dir, "vmlinux")
	os.WriteFile(kernel, []byte("kernel-bytes"), 0o644)

	vlan := 10
	spec := &vmspec.Spec{
		Name:     "vm1",
		CPUs:     2,
		MemMiB:   512,
		Kernel:   kernel,
		BootArgs: "console=ttyS0 reboot=k panic=1",
		NICs: []vmspec.NIC{
			{DeviceID: 1, MAC: "AA:BB:CC:DD:EE:02", VLAN: &vlan},
			{DeviceID: 0, MAC: "AA:BB:CC:DD:EE:01", VLAN: &vlan},
		},
	}
	paths := vmspec.Paths{
		ConfigFile: filepath.Join(dir, "vm1.json"),
		LogFile:    filepath.Join(dir, "vm1.log"),
	}

	if err := Write(spec, paths, "/dev/vg0/vm-vm1"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(paths.ConfigFile)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}

	for _, key := range []string{"boot-source", "drives", "machine-config", "network-interfaces", "vsock", "logger", "metrics", "mmds-config"} {
		if _, ok := got[key]; !ok {
			t.Errorf("config missing key %q", key)
		}
	}
	if got["vsock"] != nil || got["metrics"] != nil || got["mmds-config"] != nil {
		t.Errorf("expected vsock/metrics/mmds-config to be null, got %v/%v/%v", got["vsock"], got["metrics"], got["mmds-config"])
	}

	nics, ok := got["network-interfaces"].([]interface{})
	if !ok || len(nics) != 2 {
		t.Fatalf("expected 2 network interfaces, got %v", got["network-interfaces"])
	}
	first := nics[0].(map[string]interface{})
	if first["iface_id"] != "eth0" {
		t.Errorf("expected network-interfaces sorted by deviceId, first iface_id = %v", first["iface_id"])
	}
}

func TestWrite_MissingKernel(t *testing.T) {
	dir := t.TempDir()
	spec := &vmspec.Spec{Name: "vm1", Kernel: filepath.Join(dir, "nope")}
	err := Write(spec, vmspec.Paths{ConfigFile: filepath.Join(dir, "vm1.json")}, "/dev/vg0/vm-vm1")
	if err == nil {
		t.Fatal("expected error for missing kernel")
	}
	if apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("KindOf(err) = %v, want NotFound", apierr.KindOf(err))
	}
}

func TestWrite_NoKernelPath(t *testing.T) {
	spec := &vmspec.Spec{Name: "vm1"}
	err := Write(spec, vmspec.Paths{}, "/dev/vg0/vm-vm1")
	if err == nil || apierr.KindOf(err) != apierr.InvalidArgument {
		t.Fatalf("expected InvalidArgument error, got %v", err)
	}
}
