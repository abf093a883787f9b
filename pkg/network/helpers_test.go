package network

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVidFromBroadcastURI(t *testing.T) {
	two := 2
	tests := []struct {
		name     string
		uri      string
		explicit *int
		wantVID  int
		wantOK   bool
	}{
		{"explicit wins", "vlan://5", &two, 2, true},
		{"from uri", "vlan://42", nil, 42, true},
		{"malformed uri", "vlan://abc", nil, 0, false},
		{"empty", "", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vid, ok := vidFromBroadcastURI(tt.uri, tt.explicit)
			if ok != tt.wantOK || vid != tt.wantVID {
				t.Errorf("vidFromBroadcastURI(%q, %v) = (%d, %v), want (%d, %v)", tt.uri, tt.explicit, vid, ok, tt.wantVID, tt.wantOK)
			}
		})
	}
}

func TestDedupSorted(t *testing.T) {
	got := dedupSorted([]string{"f1-vm", "", "f0-vm", "f1-vm"})
	want := []string{"f0-vm", "f1-vm"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFirecrackerConfigTaps(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vm.json")
	os.WriteFile(cfgPath, []byte(`{"network-interfaces":[{"host_dev_name":"f0-vm1"},{"host_dev_name":"f1-vm1"}]}`), 0o644)

	taps := firecrackerConfigTaps(cfgPath)
	if len(taps) != 2 || taps[0] != "f0-vm1" || taps[1] != "f1-vm1" {
		t.Fatalf("firecrackerConfigTaps() = %v", taps)
	}

	if got := firecrackerConfigTaps(filepath.Join(dir, "missing.json")); got != nil {
		t.Fatalf("expected nil for missing file, got %v", got)
	}
}

func TestConfigFileExists(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.json")
	os.WriteFile(present, []byte("{}"), 0o644)

	if !configFileExists(present) {
		t.Error("expected existing file to report true")
	}
	if configFileExists(filepath.Join(dir, "absent.json")) {
		t.Error("expected missing file to report false")
	}
}

func TestParseOVSIntSet(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"[]", nil},
		{"1", []int{1}},
		{"[1, 2, 3]", []int{1, 2, 3}},
	}
	for _, tt := range tests {
		got := parseOVSIntSet(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("parseOVSIntSet(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseOVSIntSet(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}
