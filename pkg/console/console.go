// Package console implements the optional VNC console bridge: an Xvfb
// virtual display, an xterm attached to the VM's supervising tmux session,
// and an x11vnc server exposing that display over the remote framebuffer
// protocol. Grounded on original_source/host-agent/utils/vnc_console.py.
// Unlike the original, which only polls process liveness on demand, a
// background watcher goroutine observes the x11vnc process directly and
// tears the whole bridge down the moment it exits.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/supervisor"
)

// Config is the per-agent console tuning knobs, loaded from the agent
// config's optional `console` block.
type Config struct {
	BindHost      string
	PortMin       int
	PortMax       int
	Geometry      string
	XtermGeometry string
	FontFamily    string
	FontSize      int
	ReadOnly      bool
}

func (c Config) withDefaults() Config {
	if c.BindHost == "" {
		c.BindHost = "0.0.0.0"
	}
	if c.PortMin == 0 {
		c.PortMin = 5900
	}
	if c.PortMax == 0 {
		c.PortMax = 5999
	}
	if c.Geometry == "" {
		c.Geometry = "1024x768x24"
	}
	if c.XtermGeometry == "" {
		c.XtermGeometry = "132x44"
	}
	if c.FontFamily == "" {
		c.FontFamily = "Monospace"
	}
	if c.FontSize == 0 {
		c.FontSize = 14
	}
	return c
}

// State is the persisted per-VM console bridge record.
type State struct {
	VMName       string    `json:"vm_name"`
	CreatedAt    time.Time `json:"created_at"`
	Display      string    `json:"display"`
	XvfbPID      int       `json:"xvfb_pid"`
	XtermPID     int       `json:"xterm_pid"`
	X11vncPID    int       `json:"x11vnc_pid"`
	Port         int       `json:"port"`
	Password     string    `json:"password"`
	PasswordFile string    `json:"password_file"`
	BindHost     string    `json:"bind_host"`
	SessionName  string    `json:"session_name"`
}

// Response is what EnsureConsole returns to the HTTP surface.
type Response struct {
	VMName    string    `json:"vm_name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager starts, reuses, and tears down per-VM console bridges.
type Manager struct {
	stateDir string
	cfg      Config
	log      logging.Logger
}

func New(runDir string, cfg Config, log logging.Logger) *Manager {
	stateDir := filepath.Join(runDir, "vnc")
	os.MkdirAll(stateDir, 0o755)
	return &Manager{stateDir: stateDir, cfg: cfg.withDefaults(), log: log}
}

func (m *Manager) statePath(vmName string) string {
	return filepath.Join(m.stateDir, vmName+".json")
}

// EnsureConsole starts a console bridge for vmName, or returns the
// already-running one if all three child processes are still alive.
func (m *Manager) EnsureConsole(ctx context.Context, vmName string) (*Response, error) {
	if state, ok := m.loadState(vmName); ok {
		if m.stateActive(state) {
			return m.responsePayload(state), nil
		}
		m.cleanupState(ctx, state)
	}

	session := supervisor.SessionName(vmName)
	sup := supervisor.New()
	if !sup.SessionExists(ctx, session) {
		return nil, apierr.NotFoundf("tmux session %s not found; VM console is not available", session)
	}

	port, err := m.allocatePort()
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "allocate vnc port", err)
	}
	password := generatePassword()
	passwordFile, err := m.writePasswordFile(ctx, vmName, password)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "store vnc password", err)
	}

	display, xvfbCmd, err := m.startXvfb(ctx)
	if err != nil {
		os.Remove(passwordFile)
		return nil, apierr.Wrap(apierr.Internal, "start Xvfb", err)
	}
	xtermCmd, err := m.startXterm(display, vmName, session)
	if err != nil {
		terminate(xvfbCmd.Process)
		os.Remove(passwordFile)
		return nil, apierr.Wrap(apierr.Internal, "start xterm", err)
	}
	x11vncCmd, err := m.startX11vnc(display, port, passwordFile)
	if err != nil {
		terminate(xtermCmd.Process)
		terminate(xvfbCmd.Process)
		os.Remove(passwordFile)
		return nil, apierr.Wrap(apierr.Internal, "start x11vnc", err)
	}

	state := State{
		VMName:       vmName,
		CreatedAt:    time.Now(),
		Display:      display,
		XvfbPID:      xvfbCmd.Process.Pid,
		XtermPID:     xtermCmd.Process.Pid,
		X11vncPID:    x11vncCmd.Process.Pid,
		Port:         port,
		Password:     password,
		PasswordFile: passwordFile,
		BindHost:     m.cfg.BindHost,
		SessionName:  session,
	}
	if err := m.writeState(state); err != nil {
		m.log.Warn(ctx, "failed to persist console state", map[string]interface{}{"vm": vmName, "error": err.Error()})
	}

	go m.watch(vmName, x11vncCmd)

	return m.responsePayload(state), nil
}

// StopConsole tears down the console bridge for vmName, if one is running.
func (m *Manager) StopConsole(ctx context.Context, vmName string) string {
	state, ok := m.loadState(vmName)
	if !ok {
		return fmt.Sprintf("no VNC console running for %s", vmName)
	}
	m.cleanupState(ctx, state)
	os.Remove(m.statePath(vmName))
	return fmt.Sprintf("VNC console stopped for %s", vmName)
}

// watch blocks until the x11vnc process exits, then tears down the rest of
// the bridge, going beyond what the original on-demand liveness poll
// provided.
func (m *Manager) watch(vmName string, x11vncCmd *exec.Cmd) {
	x11vncCmd.Wait()
	ctx := context.Background()
	state, ok := m.loadState(vmName)
	if !ok {
		return
	}
	m.log.Info(ctx, "console framebuffer process exited, cleaning up bridge", map[string]interface{}{"vm": vmName})
	m.cleanupState(ctx, state)
	os.Remove(m.statePath(vmName))
}

func (m *Manager) responsePayload(state State) *Response {
	return &Response{
		VMName:    state.VMName,
		Host:      state.BindHost,
		Port:      state.Port,
		Password:  state.Password,
		CreatedAt: state.CreatedAt,
	}
}

func (m *Manager) stateActive(state State) bool {
	for _, pid := range []int{state.XvfbPID, state.XtermPID, state.X11vncPID} {
		if pid == 0 || !processAlive(pid) {
			return false
		}
	}
	return true
}

func (m *Manager) cleanupState(ctx context.Context, state State) {
	for _, pid := range []int{state.X11vncPID, state.XtermPID, state.XvfbPID} {
		if pid == 0 {
			continue
		}
		terminatePID(pid)
	}
	if state.PasswordFile != "" {
		os.Remove(state.PasswordFile)
	}
}

func (m *Manager) loadState(vmName string) (State, bool) {
	data, err := os.ReadFile(m.statePath(vmName))
	if err != nil {
		return State{}, false
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false
	}
	return state, true
}

func (m *Manager) writeState(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	path := m.statePath(state.VMName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// allocatePort probes the configured range for a bindable TCP port,
// grounded on _allocate_port's bind-and-release probing strategy.
func (m *Manager) allocatePort() (int, error) {
	for port := m.cfg.PortMin; port <= m.cfg.PortMax; port++ {
		addr := net.JoinHostPort(m.cfg.BindHost, fmt.Sprintf("%d", port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free VNC ports available in range %d-%d", m.cfg.PortMin, m.cfg.PortMax)
}

// generatePassword produces a ≥8-character URL-safe single-use password,
// using a UUID's hex digits as the token source.
func generatePassword() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (m *Manager) writePasswordFile(ctx context.Context, vmName, password string) (string, error) {
	path := filepath.Join(m.stateDir, vmName+".pass")
	if err := exec.CommandContext(ctx, "x11vnc", "-storepasswd", password, path).Run(); err != nil {
		return "", err
	}
	os.Chmod(path, 0o600)
	return path, nil
}

// startXvfb launches Xvfb with -displayfd 1 and reads the chosen display
// number off its stdout within a 2-second window, grounded on
// _start_xvfb's select-loop readiness detection.
func (m *Manager) startXvfb(ctx context.Context) (string, *exec.Cmd, error) {
	cmd := exec.Command("Xvfb", "-screen", "0", m.cfg.Geometry, "-nolisten", "tcp", "-displayfd", "1")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, err
	}
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return "", nil, err
	}

	lineCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		if scanner.Scan() {
			lineCh <- scanner.Text()
		} else {
			lineCh <- ""
		}
	}()

	select {
	case line := <-lineCh:
		display := strings.TrimSpace(line)
		if display == "" {
			cmd.Process.Kill()
			return "", nil, fmt.Errorf("Xvfb did not report a display number")
		}
		if !strings.HasPrefix(display, ":") {
			display = ":" + display
		}
		return display, cmd, nil
	case <-time.After(2 * time.Second):
		cmd.Process.Kill()
		return "", nil, fmt.Errorf("Xvfb did not report a display number within timeout")
	case <-ctx.Done():
		cmd.Process.Kill()
		return "", nil, ctx.Err()
	}
}

func (m *Manager) startXterm(display, vmName, sessionName string) (*exec.Cmd, error) {
	args := []string{
		"-geometry", m.cfg.XtermGeometry,
		"-T", fmt.Sprintf("Firecracker console: %s", vmName),
		"-fa", m.cfg.FontFamily,
		"-fs", fmt.Sprintf("%d", m.cfg.FontSize),
		"-e", "tmux", "attach", "-t", sessionName,
	}
	if m.cfg.ReadOnly {
		args = append(args, "-r")
	}
	cmd := exec.Command("xterm", args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+display)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (m *Manager) startX11vnc(display string, port int, passwordFile string) (*exec.Cmd, error) {
	args := []string{
		"-display", display,
		"-rfbport", fmt.Sprintf("%d", port),
		"-rfbauth", passwordFile,
		"-forever", "-shared", "-noxdamage", "-nolookup", "-quiet",
		"-scale", "1x1",
	}
	if m.cfg.BindHost != "127.0.0.1" && m.cfg.BindHost != "::1" {
		args = append(args, "-listen", m.cfg.BindHost)
	} else {
		args = append(args, "-localhost")
	}
	cmd := exec.Command("x11vnc", args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+display)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// processAlive reports whether pid refers to a live process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// terminate sends SIGTERM to a freshly started child process we still hold
// a handle to, used when unwinding a partially started bridge.
func terminate(p *os.Process) {
	if p == nil {
		return
	}
	p.Signal(unix.SIGTERM)
}

// terminatePID sends SIGTERM, then SIGKILL if it is still alive shortly
// after, to a process we only know by PID (loaded back from state).
func terminatePID(pid int) {
	if pid <= 0 {
		return
	}
	unix.Kill(pid, unix.SIGTERM)
	time.Sleep(100 * time.Millisecond)
	if processAlive(pid) {
		unix.Kill(pid, unix.SIGKILL)
	}
}
