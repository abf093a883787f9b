package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

func TestShellQuote(t *testing.T) {
	tests := []struct{ in, want string }{
		{"simple", "simple"},
		{"/usr/bin/firecracker", "/usr/bin/firecracker"},
		{"has space", "'has space'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShellJoin(t *testing.T) {
	got := shellJoin([]string{"/bin/fc", "--api-sock", "/run/vm1.sock"})
	want := "/bin/fc --api-sock /run/vm1.sock"
	if got != want {
		t.Errorf("shellJoin() = %q, want %q", got, want)
	}
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vm.pid")
	os.WriteFile(path, []byte("1234\n"), 0o644)
	if got := readPIDFile(path); got != 1234 {
		t.Errorf("readPIDFile() = %d, want 1234", got)
	}

	if got := readPIDFile(filepath.Join(dir, "missing.pid")); got != 0 {
		t.Errorf("readPIDFile(missing) = %d, want 0", got)
	}

	os.WriteFile(path, []byte("not-a-pid"), 0o644)
	if got := readPIDFile(path); got != 0 {
		t.Errorf("readPIDFile(garbage) = %d, want 0", got)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("expected current process to report alive")
	}
	if processAlive(0) {
		t.Error("expected pid 0 to report not alive")
	}
}

func TestSessionName(t *testing.T) {
	if got := SessionName("web-01"); got != "fc-web-01" {
		t.Errorf("SessionName() = %q, want fc-web-01", got)
	}
}

func TestFindPID_NoBinary(t *testing.T) {
	s := New()
	if pid := s.FindPID(context.Background(), vmspec.Paths{}, ""); pid != 0 {
		t.Errorf("FindPID with empty binary = %d, want 0", pid)
	}
}
