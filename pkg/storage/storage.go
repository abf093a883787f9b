// Package storage implements the pluggable volume backends: file (raw byte
// copy), lvm (thick logical volume), and lvmthin
// (thin-pool snapshot from a shared base). Grounded on
// original_source/host-agent/backend/storage/{base,file,lvm,lvmthin,
// lvm_helpers}.py and __init__.py's driver-keyed factory.
package storage

import (
	"context"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

// Backend is the common capability set every storage driver implements
// (a polymorphic value over prepare/teardown/device_path, rather than a
// single type switching on driver name).
type Backend interface {
	// Prepare idempotently materializes the VM volume.
	Prepare(ctx context.Context) error
	// DevicePath returns the host-visible path Firecracker will open.
	DevicePath() string
	// Delete removes the volume; absent volume is success.
	Delete(ctx context.Context) error
	// Cleanup deletes and swallows recoverable errors (log-and-continue).
	Cleanup(ctx context.Context, log logging.Logger)
}

// NewBackend is the factory keyed by spec.Storage.Driver, mirroring
// backend/storage/__init__.py::get_backend_by_driver.
func NewBackend(spec *vmspec.Spec, paths vmspec.Paths) (Backend, error) {
	driver := spec.Storage.Driver
	if driver == "" {
		driver = "file"
	}
	switch driver {
	case "file":
		return &FileBackend{Image: spec.Image, Dst: paths.VolumeFile}, nil
	case "lvm":
		if spec.Storage.VolumeGroup == "" {
			return nil, apierr.Invalidf("storage.volume_group required for lvm driver")
		}
		return &LVMBackend{
			VG:    spec.Storage.VolumeGroup,
			LV:    "vm-" + spec.Name,
			Image: spec.Image,
			Size:  sizeOrDefault(spec.Storage.SizeHint),
		}, nil
	case "lvmthin":
		if spec.Storage.VolumeGroup == "" {
			return nil, apierr.Invalidf("storage.volume_group required for lvmthin driver")
		}
		if spec.Storage.Thinpool == "" {
			return nil, apierr.Invalidf("storage.thinpool required for lvmthin driver")
		}
		return &LVMThinBackend{
			VG:       spec.Storage.VolumeGroup,
			Pool:     spec.Storage.Thinpool,
			BaseName: baseLVNameForImage(spec.Image),
			LV:       "vm-" + spec.Name,
			Image:    spec.Image,
			Size:     sizeOrDefault(spec.Storage.SizeHint),
		}, nil
	default:
		return nil, apierr.Invalidf("unknown storage driver: %s", driver)
	}
}

func sizeOrDefault(hint string) string {
	if hint == "" {
		return "1G"
	}
	return hint
}

func baseLVNameForImage(imagePath string) string {
	stem := imagePath
	for i := len(imagePath) - 1; i >= 0; i-- {
		if imagePath[i] == '/' {
			stem = imagePath[i+1:]
			break
		}
	}
	for i := len(stem) - 1; i >= 0; i-- {
		if stem[i] == '.' {
			stem = stem[:i]
			break
		}
	}
	return "base-" + stem
}
