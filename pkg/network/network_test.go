package network

import (
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

func TestNewBackend_Driver(t *testing.T) {
	log := logging.NewSlogLogger("error")

	tests := []struct {
		name      string
		spec      *vmspec.Spec
		wantType  string
		expectErr bool
		wantKind  apierr.Kind
	}{
		{
			name:     "default driver is linux-bridge-vlan",
			spec:     &vmspec.Spec{Name: "vm1", Net: vmspec.NetSpec{HostBridge: "br0"}},
			wantType: "*network.LinuxBridgeVlanBackend",
		},
		{
			name:      "bridge required",
			spec:      &vmspec.Spec{Name: "vm1"},
			expectErr: true,
			wantKind:  apierr.InvalidArgument,
		},
		{
			name:      "ovs-vlan requires uplink",
			spec:      &vmspec.Spec{Name: "vm1", Net: vmspec.NetSpec{Driver: "ovs-vlan", HostBridge: "ovsbr0"}},
			expectErr: true,
			wantKind:  apierr.InvalidArgument,
		},
		{
			name:     "ovs-vlan with uplink",
			spec:     &vmspec.Spec{Name: "vm1", Net: vmspec.NetSpec{Driver: "ovs-vlan", HostBridge: "ovsbr0", Uplink: "eth0"}},
			wantType: "*network.OvsVlanBackend",
		},
		{
			name:      "unknown driver",
			spec:      &vmspec.Spec{Name: "vm1", Net: vmspec.NetSpec{Driver: "vxlan", HostBridge: "br0"}},
			expectErr: true,
			wantKind:  apierr.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewBackend(tt.spec, vmspec.Paths{}, log)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if apierr.KindOf(err) != tt.wantKind {
					t.Fatalf("KindOf(err) = %v, want %v", apierr.KindOf(err), tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := typeName(backend); got != tt.wantType {
				t.Fatalf("backend type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func typeName(b Backend) string {
	switch b.(type) {
	case *LinuxBridgeVlanBackend:
		return "*network.LinuxBridgeVlanBackend"
	case *OvsVlanBackend:
		return "*network.OvsVlanBackend"
	default:
		return "unknown"
	}
}
