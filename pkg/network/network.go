// Package network implements the pluggable VLAN dataplane backends:
// linux-bridge-vlan (a VLAN-filtering Linux bridge) and ovs-vlan (an Open
// vSwitch bridge). Grounded on
// original_source/host-agent/backend/networking/{base,__init__,
// linux_bridge_vlan,ovs_vlan,helpers}.py.
package network

import (
	"context"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

// Backend is the common capability set every networking driver implements
// (the prepare/teardown shape mirroring NetworkingBackend in
// backend/networking/base.py).
type Backend interface {
	// Prepare idempotently creates and attaches the VM's TAP devices,
	// returning the TAP names it created or ensured.
	Prepare(ctx context.Context) ([]string, error)
	// Teardown detaches and deletes every TAP belonging to the VM. It is
	// best-effort: errors are logged, never returned, matching the
	// original backend's "never block delete on network cleanup"
	// behavior.
	Teardown(ctx context.Context)
}

// NewBackend is the factory keyed by spec.Net.Driver, mirroring
// backend/networking/__init__.py::get_backend_by_driver.
func NewBackend(spec *vmspec.Spec, paths vmspec.Paths, log logging.Logger) (Backend, error) {
	driver := spec.Net.Driver
	if driver == "" {
		driver = "linux-bridge-vlan"
	}
	if spec.Net.HostBridge == "" {
		return nil, apierr.Invalidf("net.bridge is required")
	}
	switch driver {
	case "linux-bridge-vlan":
		return &LinuxBridgeVlanBackend{spec: spec, paths: paths, log: log, bridge: spec.Net.HostBridge, uplink: spec.Net.Uplink}, nil
	case "ovs-vlan":
		if spec.Net.Uplink == "" {
			return nil, apierr.Invalidf("net.uplink is required for the ovs-vlan driver (no autodetect)")
		}
		return &OvsVlanBackend{spec: spec, paths: paths, log: log, bridge: spec.Net.HostBridge, uplink: spec.Net.Uplink}, nil
	default:
		return nil, apierr.Invalidf("unknown network driver: %s", driver)
	}
}
