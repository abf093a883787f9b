package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/lifecycle"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/statestore"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	host := vmspec.HostDirs{
		FirecrackerBin: "/usr/bin/firecracker",
		ConfDir:        filepath.Join(dir, "conf"),
		RunDir:         filepath.Join(dir, "run"),
		LogDir:         filepath.Join(dir, "log"),
		PayloadDir:     filepath.Join(dir, "payload"),
		ImageDir:       filepath.Join(dir, "images"),
		KernelDir:      filepath.Join(dir, "kernel"),
	}
	for _, d := range []string{host.ConfDir, host.RunDir, host.LogDir, host.PayloadDir, host.ImageDir, host.KernelDir} {
		os.MkdirAll(d, 0o755)
	}
	os.WriteFile(filepath.Join(host.ImageDir, "test.img"), []byte("fake rootfs"), 0o644)
	store := statestore.New(host.RunDir, host.PayloadDir)
	log := logging.NewSlogLogger("error")
	orc := lifecycle.New(host, "file", "linux-bridge-vlan", "br0", "", store, log)
	return New(orc, store, nil, log)
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}
}

func TestVMStatus_UnknownVM(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/vms/ghost/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["power_state"] != "poweroff" {
		t.Errorf("power_state = %v, want poweroff", body["power_state"])
	}
}

func TestDeleteVM_NotFound(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/v1/vms/ghost", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("DELETE unknown vm = %d, want 404", rec.Code)
	}
}

func TestCreateVM_InvalidName(t *testing.T) {
	s := testServer(t)
	body := strings.NewReader(`{"cloudstack.vm.details":{"name":"bad name!","cpus":1}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/vms", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /v1/vms with bad name = %d, want 400", rec.Code)
	}
	var respBody map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &respBody)
	want := "Invalid VM name 'bad name!'. Only A-Z, a-z, 0-9 and '-' allowed"
	if respBody["error"] != want {
		t.Errorf("error = %v, want %q", respBody["error"], want)
	}
}

func TestMissingVLAN_Returns500NetworkingError(t *testing.T) {
	s := testServer(t)
	body := strings.NewReader(`{
		"cloudstack.vm.details": {
			"name": "vm-novlan",
			"cpus": 1,
			"maxRam": 536870912,
			"nics": [{"deviceId": 0, "mac": "aa:bb:cc:dd:ee:01"}]
		},
		"externaldetails": {"virtualmachine": {"kernel": "vmlinux", "image": "test.img"}}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/vms", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("missing VLAN create = %d, want 500", rec.Code)
	}
	var respBody map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &respBody)
	want := "linux-bridge-vlan requires VLAN for deviceId 0 but none resolved"
	if respBody["error"] != want {
		t.Errorf("error = %v, want %q", respBody["error"], want)
	}
}

func TestRecoverAll_EmptyFleet(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/recover-all", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/recover-all = %d, want 200", rec.Code)
	}
}

func TestSaveStates_Empty(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/save-states", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/save-states = %d, want 200", rec.Code)
	}
}

func TestGetNetworkConfig_NotFound(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/network-config/ghost", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET network-config unknown = %d, want 404", rec.Code)
	}
}

func TestEnsureConsole_Disabled(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/vms/vm1/console", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("POST console with disabled bridge = %d, want 503", rec.Code)
	}
}
