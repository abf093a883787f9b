package vmspec

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// DerivePaths computes the per-VM artifact tuple deterministically from the
// Spec's host roots and storage selection. The derivation is injective in
// the VM name: every artifact class is keyed by the validated name alone.
func DerivePaths(s *Spec) Paths {
	return Paths{
		VolumeFile: volumeFilePath(s),
		ConfigFile: filepath.Join(s.Host.ConfDir, s.Name+".json"),
		SocketFile: filepath.Join(s.Host.RunDir, s.Name+".socket"),
		PIDFile:    filepath.Join(s.Host.RunDir, s.Name+".pid"),
		LogFile:    filepath.Join(s.Host.LogDir, s.Name+".log"),
	}
}

func volumeFilePath(s *Spec) string {
	switch s.Storage.Driver {
	case "lvm", "lvmthin":
		if s.Storage.VolumeGroup != "" {
			return fmt.Sprintf("/dev/%s/vm-%s", s.Storage.VolumeGroup, s.Name)
		}
		return fmt.Sprintf("/dev/vm-%s", s.Name)
	default:
		if s.Storage.VolumeFile != "" {
			return s.Storage.VolumeFile
		}
		return filepath.Join(s.Host.ImageDir, s.Name+".img")
	}
}

var tapSanitize = regexp.MustCompile(`[^a-z0-9]`)

// TapName computes the stable, collision-free TAP device name
// f<index>-<sanitized-name>: sanitized = lowercased alphanumerics of the
// VM name, truncated to 10 characters, with the whole interface name
// never exceeding 15 characters (the Linux IFNAMSIZ limit).
func TapName(deviceIndex int, vmName string) string {
	sanitized := tapSanitize.ReplaceAllString(strings.ToLower(vmName), "")
	if len(sanitized) > 10 {
		sanitized = sanitized[:10]
	}
	name := fmt.Sprintf("f%d-%s", deviceIndex, sanitized)
	if len(name) > 15 {
		name = name[:15]
	}
	return name
}
