package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/statestore"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

func testOrchestrator(t *testing.T) (*Orchestrator, vmspec.HostDirs) {
	t.Helper()
	dir := t.TempDir()
	host := vmspec.HostDirs{
		FirecrackerBin: "/usr/bin/firecracker",
		ConfDir:        filepath.Join(dir, "conf"),
		RunDir:         filepath.Join(dir, "run"),
		LogDir:         filepath.Join(dir, "log"),
		PayloadDir:     filepath.Join(dir, "payload"),
		ImageDir:       filepath.Join(dir, "images"),
		KernelDir:      filepath.Join(dir, "kernel"),
	}
	for _, d := range []string{host.ConfDir, host.RunDir, host.LogDir, host.PayloadDir, host.ImageDir, host.KernelDir} {
		os.MkdirAll(d, 0o755)
	}
	store := statestore.New(host.RunDir, host.PayloadDir)
	o := New(host, "file", "linux-bridge-vlan", "br0", "", store, logging.NewSlogLogger("error"))
	return o, host
}

func TestDigitsOf(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"eth0", 0},
		{"eth12", 12},
		{"", -1},
		{"noDigitsHere", -1},
	}
	for _, tt := range tests {
		if got := digitsOf(tt.in); got != tt.want {
			t.Errorf("digitsOf(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNetworkSnapshotRoundTrip(t *testing.T) {
	o, host := testOrchestrator(t)
	vlan := 42
	spec := &vmspec.Spec{
		Name: "vm1",
		Host: host,
		NICs: []vmspec.NIC{{DeviceID: 0, MAC: "aa:bb:cc:dd:ee:ff", VLAN: &vlan}},
		Net:  vmspec.NetSpec{Driver: "linux-bridge-vlan", HostBridge: "br0"},
	}

	snap := o.networkSnapshotFromSpec(spec)
	if snap.Driver != "linux-bridge-vlan" || snap.Bridge != "br0" || len(snap.NICs) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	back := o.specFromNetworkSnapshot("vm1", snap)
	if back.Net.Driver != spec.Net.Driver || back.Net.HostBridge != spec.Net.HostBridge {
		t.Fatalf("net round-trip mismatch: %+v", back.Net)
	}
	if len(back.NICs) != 1 || back.NICs[0].VLAN == nil || *back.NICs[0].VLAN != vlan {
		t.Fatalf("nic round-trip mismatch: %+v", back.NICs)
	}
}

func TestStatus_UnknownVM(t *testing.T) {
	o, _ := testOrchestrator(t)
	if got := o.Status(context.Background(), "ghost"); got != "poweroff" {
		t.Errorf("Status(unknown) = %q, want poweroff", got)
	}
}

func TestDelete_UnknownVM(t *testing.T) {
	o, _ := testOrchestrator(t)
	err := o.Delete(context.Background(), "ghost")
	if err == nil || apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("Delete(unknown) error = %v, want NotFound", err)
	}
}

func TestStart_UnknownVM(t *testing.T) {
	o, _ := testOrchestrator(t)
	err := o.Start(context.Background(), "ghost", nil, 0)
	if err == nil || apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("Start(unknown) error = %v, want NotFound", err)
	}
}

func TestStop_UnknownVM_Idempotent(t *testing.T) {
	o, _ := testOrchestrator(t)
	if err := o.Stop(context.Background(), "ghost", 0); err != nil {
		t.Fatalf("Stop(unknown) error = %v, want nil (idempotent)", err)
	}
}

func TestCreate_InvalidName(t *testing.T) {
	o, host := testOrchestrator(t)
	payload := map[string]interface{}{
		"cloudstack.vm.details": map[string]interface{}{
			"name": "bad name!",
			"cpus": 1.0,
		},
	}
	_, err := o.Create(context.Background(), payload, 0)
	if err == nil || apierr.KindOf(err) != apierr.InvalidArgument {
		t.Fatalf("Create(invalid name) error = %v, want InvalidArgument", err)
	}

	entries, _ := os.ReadDir(host.ConfDir)
	if len(entries) != 0 {
		t.Errorf("expected no files under conf_dir for invalid name, got %d", len(entries))
	}
}

func TestDiscover_Empty(t *testing.T) {
	o, _ := testOrchestrator(t)
	infos, err := o.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no discovered VMs, got %d", len(infos))
	}
}

func TestDiscover_SkipsSnapshotFiles(t *testing.T) {
	o, host := testOrchestrator(t)
	os.WriteFile(filepath.Join(host.ConfDir, "network-config-vm1.json"), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(host.ConfDir, "vm-states.json"), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(host.ConfDir, "vm1.json"), []byte(`{"machine-config":{"vcpu_count":1,"mem_size_mib":512}}`), 0o644)

	infos, err := o.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "vm1" {
		t.Fatalf("Discover() = %+v, want exactly vm1", infos)
	}
}
