package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
)

// FileBackend copies a source image byte-for-byte to a destination file.
// Grounded on backend/storage/file.py::FileBackend.
type FileBackend struct {
	Image string
	Dst    string
}

func (b *FileBackend) Prepare(ctx context.Context) error {
	srcInfo, err := os.Stat(b.Image)
	if err != nil {
		if os.IsNotExist(err) {
			return apierr.NotFoundf("source image not found: %s", b.Image)
		}
		return fmt.Errorf("stat source image %s: %w", b.Image, err)
	}
	if srcInfo.IsDir() {
		return apierr.Invalidf("source image is not a file: %s", b.Image)
	}

	if err := os.MkdirAll(filepath.Dir(b.Dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir for %s: %w", b.Dst, err)
	}

	if _, err := os.Stat(b.Dst); err == nil {
		return nil // already materialized; prepare is idempotent
	}

	if err := copyFile(b.Image, b.Dst); err != nil {
		return apierr.Wrap(apierr.Storage, fmt.Sprintf("copy %s to %s", b.Image, b.Dst), err)
	}
	return os.Chmod(b.Dst, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func (b *FileBackend) DevicePath() string { return b.Dst }

func (b *FileBackend) Delete(ctx context.Context) error {
	if err := os.Remove(b.Dst); err != nil && !os.IsNotExist(err) {
		return apierr.Wrap(apierr.Storage, "delete file volume", err)
	}
	return nil
}

func (b *FileBackend) Cleanup(ctx context.Context, log logging.Logger) {
	if err := b.Delete(ctx); err != nil {
		log.Warn(ctx, "file backend cleanup failed", map[string]interface{}{"dst": b.Dst, "error": err.Error()})
	}
}
