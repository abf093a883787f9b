package console

import (
	"context"
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	return New(dir, Config{}, logging.NewSlogLogger("error"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.BindHost != "0.0.0.0" {
		t.Errorf("BindHost = %q, want 0.0.0.0", cfg.BindHost)
	}
	if cfg.PortMin != 5900 || cfg.PortMax != 5999 {
		t.Errorf("port range = [%d,%d], want [5900,5999]", cfg.PortMin, cfg.PortMax)
	}
	if cfg.Geometry == "" || cfg.XtermGeometry == "" || cfg.FontFamily == "" || cfg.FontSize == 0 {
		t.Errorf("expected all display defaults to be filled in, got %+v", cfg)
	}
}

func TestGeneratePassword(t *testing.T) {
	pw := generatePassword()
	if len(pw) < 8 {
		t.Fatalf("password %q shorter than 8 chars", pw)
	}
	for _, r := range pw {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			t.Fatalf("password %q contains non-URL-safe rune %q", pw, r)
		}
	}
}

func TestGeneratePassword_Unique(t *testing.T) {
	a := generatePassword()
	b := generatePassword()
	if a == b {
		t.Fatalf("expected distinct single-use passwords, got %q twice", a)
	}
}

func TestAllocatePort_RespectsRange(t *testing.T) {
	m := testManager(t)
	m.cfg.PortMin = 15900
	m.cfg.PortMax = 15901
	m.cfg.BindHost = "127.0.0.1"

	port, err := m.allocatePort()
	if err != nil {
		t.Fatalf("allocatePort() error = %v", err)
	}
	if port < m.cfg.PortMin || port > m.cfg.PortMax {
		t.Errorf("allocatePort() = %d, want in [%d,%d]", port, m.cfg.PortMin, m.cfg.PortMax)
	}
}

func TestEnsureConsole_NoSessionFails(t *testing.T) {
	m := testManager(t)
	_, err := m.EnsureConsole(context.Background(), "no-such-vm")
	if err == nil || apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("EnsureConsole(no session) error = %v, want NotFound", err)
	}
}

func TestStopConsole_NoState(t *testing.T) {
	m := testManager(t)
	msg := m.StopConsole(context.Background(), "never-started")
	if msg == "" {
		t.Errorf("expected a descriptive no-op message")
	}
}

func TestStateActive_ZeroPIDsNotActive(t *testing.T) {
	m := testManager(t)
	state := State{VMName: "vm1"}
	if m.stateActive(state) {
		t.Errorf("stateActive() with zero PIDs should be false")
	}
}

func TestWriteLoadState_RoundTrip(t *testing.T) {
	m := testManager(t)
	state := State{VMName: "vm1", Port: 5901, Password: "abc123xy", BindHost: "0.0.0.0"}
	if err := m.writeState(state); err != nil {
		t.Fatalf("writeState() error = %v", err)
	}
	back, ok := m.loadState("vm1")
	if !ok {
		t.Fatalf("loadState() did not find persisted state")
	}
	if back.Port != state.Port || back.Password != state.Password {
		t.Errorf("round-tripped state = %+v, want %+v", back, state)
	}
}
