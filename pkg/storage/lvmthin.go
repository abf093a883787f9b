package storage

import (
	"context"
	"os"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
)

// LVMThinBackend reuses (or creates) a shared base thin volume per image,
// then snapshots it per VM. Grounded on
// backend/storage/lvmthin.py::LvmThinBackend; the base volume's
// mkfs-then-copy bug is removed the same way as LVMBackend (DESIGN.md Open
// Question 1): the base volume is populated by a direct image copy, no
// mkfs.
type LVMThinBackend struct {
	VG, Pool, BaseName, LV, Image, Size string
	devicePath                          string
}

func (b *LVMThinBackend) Prepare(ctx context.Context) error {
	if err := b.ensureBase(ctx); err != nil {
		return err
	}

	if lvExists(ctx, b.VG, b.LV) {
		if err := lvChangeActivate(ctx, b.VG, b.LV); err != nil {
			return err
		}
	} else {
		if err := lvCreateSnapshot(ctx, b.VG, b.BaseName, b.LV); err != nil {
			return err
		}
		if err := lvChangeActivate(ctx, b.VG, b.LV); err != nil {
			return err
		}
	}

	path, err := resolveLVDevPath(ctx, b.VG, b.LV)
	if err != nil {
		return err
	}
	b.devicePath = path
	return nil
}

func (b *LVMThinBackend) ensureBase(ctx context.Context) error {
	if lvExists(ctx, b.VG, b.BaseName) {
		return lvChangeActivate(ctx, b.VG, b.BaseName)
	}
	if _, err := os.Stat(b.Image); err != nil {
		if os.IsNotExist(err) {
			return apierr.NotFoundf("source image not found: %s", b.Image)
		}
		return err
	}
	if err := lvCreateThin(ctx, b.VG, b.Pool, b.BaseName, b.Size); err != nil {
		return err
	}
	basePath, err := resolveLVDevPath(ctx, b.VG, b.BaseName)
	if err != nil {
		return err
	}
	return copyImageToDevice(ctx, b.Image, basePath)
}

func (b *LVMThinBackend) DevicePath() string {
	if b.devicePath != "" {
		return b.devicePath
	}
	return "/dev/" + b.VG + "/" + b.LV
}

// Delete removes only the per-VM snapshot; the shared base volume is left
// in place for reuse by other VMs sharing the same source image.
func (b *LVMThinBackend) Delete(ctx context.Context) error {
	return lvRemove(ctx, b.VG, b.LV)
}

func (b *LVMThinBackend) Cleanup(ctx context.Context, log logging.Logger) {
	if err := b.Delete(ctx); err != nil {
		log.Warn(ctx, "lvmthin backend cleanup failed", map[string]interface{}{"vg": b.VG, "lv": b.LV, "error": err.Error()})
	}
}
