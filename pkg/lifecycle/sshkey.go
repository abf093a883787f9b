package lifecycle

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cloudstack/firecracker-agent/pkg/logging"
)

// injectSSHKey best-effort mounts devicePath and appends key to
// ~<username>/.ssh/authorized_keys, cleaning up the mount and any loop
// device on every exit path. Failures are logged and swallowed: a guest
// that cannot be reached for key injection still boots. Grounded on
// original_source/host-agent/utils/filesystem.py::inject_ssh_key_into_path.
func injectSSHKey(ctx context.Context, log logging.Logger, devicePath, key, username string) {
	if key == "" {
		return
	}
	if username == "" {
		username = "root"
	}

	mntDir, err := os.MkdirTemp("", "fc-mnt-")
	if err != nil {
		log.Warn(ctx, "ssh key injection: create mount dir failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer os.RemoveAll(mntDir)

	var loopDev string
	mounted := false

	if isBlockDevice(devicePath) {
		if err := runQuiet(ctx, "mount", devicePath, mntDir); err != nil {
			log.Warn(ctx, "ssh key injection: mount block device failed", map[string]interface{}{"device": devicePath, "error": err.Error()})
			return
		}
		mounted = true
	} else if err := runQuiet(ctx, "mount", "-o", "loop", devicePath, mntDir); err == nil {
		mounted = true
	} else {
		out, err := exec.CommandContext(ctx, "losetup", "--show", "-f", devicePath).Output()
		if err != nil {
			log.Warn(ctx, "ssh key injection: losetup failed", map[string]interface{}{"device": devicePath, "error": err.Error()})
			return
		}
		loopDev = trimNewline(out)
		if err := runQuiet(ctx, "kpartx", "-av", loopDev); err != nil {
			log.Warn(ctx, "ssh key injection: kpartx failed", map[string]interface{}{"loop": loopDev, "error": err.Error()})
			runQuiet(ctx, "losetup", "-d", loopDev)
			return
		}
		part := filepath.Join("/dev/mapper", filepath.Base(loopDev)+"p1")
		if err := runQuiet(ctx, "mount", part, mntDir); err != nil {
			log.Warn(ctx, "ssh key injection: mount partition failed", map[string]interface{}{"partition": part, "error": err.Error()})
			runQuiet(ctx, "kpartx", "-dv", loopDev)
			runQuiet(ctx, "losetup", "-d", loopDev)
			return
		}
		mounted = true
		defer runQuiet(ctx, "kpartx", "-dv", loopDev)
	}

	defer func() {
		if mounted {
			runQuiet(ctx, "umount", mntDir)
		}
		if loopDev != "" {
			runQuiet(ctx, "losetup", "-d", loopDev)
		}
	}()

	sshDir := filepath.Join(mntDir, username, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		sshDir = filepath.Join(mntDir, "root", ".ssh")
		if err := os.MkdirAll(sshDir, 0o700); err != nil {
			log.Warn(ctx, "ssh key injection: create .ssh dir failed", map[string]interface{}{"error": err.Error()})
			return
		}
	}

	authFile := filepath.Join(sshDir, "authorized_keys")
	f, err := os.OpenFile(authFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		log.Warn(ctx, "ssh key injection: open authorized_keys failed", map[string]interface{}{"error": err.Error()})
		return
	}
	_, werr := f.WriteString(key + "\n")
	f.Close()
	if werr != nil {
		log.Warn(ctx, "ssh key injection: write authorized_keys failed", map[string]interface{}{"error": werr.Error()})
		return
	}
	os.Chmod(sshDir, 0o700)
	os.Chmod(authFile, 0o600)
	log.Info(ctx, "injected ssh key", map[string]interface{}{"path": authFile})
}

func isBlockDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
}

func runQuiet(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func trimNewline(b []byte) string {
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
