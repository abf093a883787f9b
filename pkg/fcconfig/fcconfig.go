// Package fcconfig renders the Firecracker JSON configuration file a
// supervised firecracker process is launched against (`firecracker
// --config-file`). Grounded on
// original_source/host-agent/config/manager.py::write_config for the
// exact on-disk schema, using firecracker-go-sdk's client/models request
// types for the well-established Firecracker API field shapes (confirmed
// against pkg/vmm/firecracker/firecracker.go's own use of models.Drive and
// models.MachineConfiguration in this pack).
package fcconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	sdk "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

// document is the exact on-disk shape `firecracker --config-file` expects:
// boot-source, drives, machine-config, network-interfaces, plus the
// disabled vsock/metrics/mmds-config sections and a file-backed logger.
type document struct {
	BootSource        models.BootSource          `json:"boot-source"`
	Drives            []models.Drive             `json:"drives"`
	MachineConfig     models.MachineConfiguration `json:"machine-config"`
	NetworkInterfaces []models.NetworkInterface   `json:"network-interfaces"`
	Vsock             interface{}                 `json:"vsock"`
	Logger            models.Logger               `json:"logger"`
	Metrics           interface{}                 `json:"metrics"`
	MMDSConfig        interface{}                 `json:"mmds-config"`
}

// Write renders and atomically persists the Firecracker config for spec at
// paths.ConfigFile. devicePath is the host-visible rootfs device/file the
// storage backend prepared. Starting a VM requires a kernel path; the
// stop/status/delete operations never call Write.
func Write(spec *vmspec.Spec, paths vmspec.Paths, devicePath string) error {
	if spec.Kernel == "" {
		return apierr.Invalidf("kernel image path is required to start a VM")
	}
	if _, err := os.Stat(spec.Kernel); err != nil {
		return apierr.NotFoundf("kernel image not found: %s", spec.Kernel)
	}

	nics := make([]vmspec.NIC, len(spec.NICs))
	copy(nics, spec.NICs)
	sort.Slice(nics, func(i, j int) bool { return nics[i].DeviceID < nics[j].DeviceID })

	netIfaces := make([]models.NetworkInterface, 0, len(nics))
	for _, n := range nics {
		tap := vmspec.TapName(n.DeviceID, spec.Name)
		netIfaces = append(netIfaces, models.NetworkInterface{
			IfaceID:     sdk.String(fmt.Sprintf("eth%d", n.DeviceID)),
			GuestMac:    n.MAC,
			HostDevName: sdk.String(tap),
		})
	}

	doc := document{
		BootSource: models.BootSource{
			KernelImagePath: sdk.String(spec.Kernel),
			BootArgs:        spec.BootArgs,
		},
		Drives: []models.Drive{
			{
				DriveID:      sdk.String("rootfs"),
				PathOnHost:   sdk.String(devicePath),
				IsRootDevice: sdk.Bool(true),
				IsReadOnly:   sdk.Bool(false),
				CacheType:    "Unsafe",
				IoEngine:     "Sync",
			},
		},
		MachineConfig: models.MachineConfiguration{
			VcpuCount:       sdk.Int64(int64(spec.CPUs)),
			MemSizeMib:      sdk.Int64(int64(spec.MemMiB)),
			Smt:             false,
			TrackDirtyPages: false,
		},
		NetworkInterfaces: netIfaces,
		Vsock:             nil,
		Logger: models.Logger{
			LogPath:       sdk.String(paths.LogFile),
			Level:         "Info",
			ShowLevel:     false,
			ShowLogOrigin: false,
		},
		Metrics:    nil,
		MMDSConfig: nil,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apierr.Wrap(apierr.Internal, "marshal firecracker config", err)
	}

	if err := os.MkdirAll(filepath.Dir(paths.ConfigFile), 0o755); err != nil {
		return apierr.Wrap(apierr.Internal, "create config directory", err)
	}
	tmp := paths.ConfigFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierr.Wrap(apierr.Internal, "write firecracker config", err)
	}
	if err := os.Rename(tmp, paths.ConfigFile); err != nil {
		return apierr.Wrap(apierr.Internal, "rename firecracker config into place", err)
	}
	return nil
}
