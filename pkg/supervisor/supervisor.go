// Package supervisor launches and supervises a firecracker process inside
// a detached tmux session, discovers its PID, and terminates it on stop.
// Grounded on original_source/host-agent/utils/tmux.py::TmuxManager and
// orchestration/vm_manager.py's start_vm/stop_vm.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
	"golang.org/x/sys/unix"
)

// SessionName is the tmux session a VM's firecracker process runs inside.
func SessionName(vmName string) string { return "fc-" + vmName }

// Supervisor starts, discovers, and terminates the firecracker process for
// a VM via tmux, without tracking any in-memory state of its own — every
// query re-derives state from the OS (tmux, /proc, the socket file),
// matching the original backend's "never trust cached state" posture.
type Supervisor struct {
	TmuxBin string
}

func New() *Supervisor {
	return &Supervisor{TmuxBin: "tmux"}
}

// Start launches firecracker in a detached tmux session, killing any
// stale session of the same name first, and returns the discovered PID
// (0 if it could not be found within the grace window).
func (s *Supervisor) Start(ctx context.Context, spec *vmspec.Spec, paths vmspec.Paths) (int, error) {
	session := SessionName(spec.Name)
	if s.SessionExists(ctx, session) {
		s.KillSession(ctx, session)
	}

	if err := os.Remove(paths.SocketFile); err != nil && !os.IsNotExist(err) {
		return 0, apierr.Wrap(apierr.Hypervisor, fmt.Sprintf("remove stale socket %s", paths.SocketFile), err)
	}
	if f, err := os.OpenFile(paths.LogFile, os.O_CREATE|os.O_APPEND, 0o644); err == nil {
		f.Close()
		os.Chmod(paths.LogFile, 0o644)
	}

	cmd := []string{
		spec.Host.FirecrackerBin,
		"--api-sock", paths.SocketFile,
		"--config-file", paths.ConfigFile,
	}
	cmdStr := shellJoin(cmd)
	if out, err := exec.CommandContext(ctx, s.TmuxBin, "new-session", "-d", "-s", session, "-n", "fc", "sh", "-lc", cmdStr).CombinedOutput(); err != nil {
		return 0, apierr.Wrap(apierr.Hypervisor, fmt.Sprintf("create tmux session %s: %s", session, strings.TrimSpace(string(out))), err)
	}

	pid := s.FindPID(ctx, paths, spec.Host.FirecrackerBin)
	if pid == 0 {
		time.Sleep(500 * time.Millisecond)
		pid = s.FindPID(ctx, paths, spec.Host.FirecrackerBin)
	}
	return pid, nil
}

// Stop terminates the firecracker process recorded in paths.PIDFile,
// waiting up to timeout for a graceful exit before sending SIGKILL. It
// does not touch the tmux session or Firecracker API — callers that want
// a graceful guest shutdown send SendCtrlAltDel through pkg/fcclient
// first.
func (s *Supervisor) Stop(ctx context.Context, paths vmspec.Paths, timeout time.Duration) error {
	pid := readPIDFile(paths.PIDFile)
	if pid == 0 {
		return nil
	}
	if !processAlive(pid) {
		return nil
	}

	_ = unix.Kill(pid, unix.SIGTERM)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && processAlive(pid) {
		time.Sleep(200 * time.Millisecond)
	}
	if processAlive(pid) {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
	return nil
}

// Running reports whether vmName's firecracker process is alive by any of
// three signals: a live PID recorded in paths.PIDFile, a /proc cmdline
// match, or a live tmux session — matching status_vm's
// pid_running-or-live_pid-or-tmux_exists disjunction.
func (s *Supervisor) Running(ctx context.Context, vmName string, paths vmspec.Paths, firecrackerBin string) bool {
	if pid := readPIDFile(paths.PIDFile); pid != 0 && processAlive(pid) {
		return true
	}
	if s.FindPID(ctx, paths, firecrackerBin) != 0 {
		return true
	}
	return s.SessionExists(ctx, SessionName(vmName))
}

// SessionExists reports whether a tmux session is alive.
func (s *Supervisor) SessionExists(ctx context.Context, session string) bool {
	err := exec.CommandContext(ctx, s.TmuxBin, "has-session", "-t", session).Run()
	return err == nil
}

// KillSession best-effort kills a tmux session; a missing session is not
// an error.
func (s *Supervisor) KillSession(ctx context.Context, session string) {
	exec.CommandContext(ctx, s.TmuxBin, "kill-session", "-t", session).Run()
}

// FindPID discovers the firecracker PID by matching /proc/<pid>/cmdline
// against the binary path and socket path, grounded on
// tmux.py::TmuxManager.find_fc_pid's cmdline-match strategy.
func (s *Supervisor) FindPID(ctx context.Context, paths vmspec.Paths, firecrackerBin string) int {
	if firecrackerBin == "" {
		return 0
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil {
			continue
		}
		args := strings.Split(strings.TrimRight(string(cmdline), "\x00"), "\x00")
		if len(args) == 0 || !strings.Contains(args[0], firecrackerBin) {
			continue
		}
		for _, a := range args {
			if strings.Contains(a, paths.SocketFile) {
				return pid
			}
		}
	}
	return 0
}

// processAlive reports whether pid refers to a live process, via the
// conventional kill(pid, 0) liveness probe.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// shellJoin quotes each argument for safe inclusion in `sh -lc`, grounded
// on tmux.py::TmuxManager.new_session's shlex.quote usage.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
