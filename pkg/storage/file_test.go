package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
)

func TestFileBackend_Prepare(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "base.img")
	if err := os.WriteFile(src, []byte("rootfs-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "volumes", "vm-1.img")

	b := &FileBackend{Image: src, Dst: dst}
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "rootfs-bytes" {
		t.Fatalf("dst content = %q, want %q", got, "rootfs-bytes")
	}
	if b.DevicePath() != dst {
		t.Fatalf("DevicePath() = %q, want %q", b.DevicePath(), dst)
	}
}

func TestFileBackend_Prepare_Idempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "base.img")
	os.WriteFile(src, []byte("v1"), 0o644)
	dst := filepath.Join(dir, "vm-1.img")

	b := &FileBackend{Image: src, Dst: dst}
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Mutate the source; a second Prepare must not re-copy.
	os.WriteFile(src, []byte("v2-different-length"), 0o644)
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "v1" {
		t.Fatalf("expected idempotent prepare to leave dst untouched, got %q", got)
	}
}

func TestFileBackend_Prepare_MissingSource(t *testing.T) {
	dir := t.TempDir()
	b := &FileBackend{Image: filepath.Join(dir, "nope.img"), Dst: filepath.Join(dir, "vm.img")}
	err := b.Prepare(context.Background())
	if err == nil {
		t.Fatal("expected error for missing source image")
	}
	if apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("KindOf(err) = %v, want NotFound", apierr.KindOf(err))
	}
}

func TestFileBackend_Delete(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "vm.img")
	os.WriteFile(dst, []byte("x"), 0o644)

	b := &FileBackend{Dst: dst}
	if err := b.Delete(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatal("expected file to be removed")
	}

	// Deleting an already-absent volume is success.
	if err := b.Delete(context.Background()); err != nil {
		t.Fatalf("Delete on absent volume should be nil, got %v", err)
	}
}
