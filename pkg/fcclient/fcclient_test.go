package fcclient

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
)

func TestGetVersion_MissingSocket(t *testing.T) {
	dir := t.TempDir()
	c := New(filepath.Join(dir, "no.sock"))
	_, err := c.GetVersion(context.Background())
	if err == nil {
		t.Fatal("expected error dialing missing socket")
	}
	if apierr.KindOf(err) != apierr.Hypervisor {
		t.Fatalf("KindOf(err) = %v, want Hypervisor", apierr.KindOf(err))
	}
}

func TestReachable_MissingSocket(t *testing.T) {
	dir := t.TempDir()
	c := New(filepath.Join(dir, "no.sock"))
	if c.Reachable(context.Background()) {
		t.Error("expected Reachable() false for missing socket")
	}
}

func TestSendCtrlAltDel_MissingSocket(t *testing.T) {
	dir := t.TempDir()
	c := New(filepath.Join(dir, "no.sock"))
	if err := c.SendCtrlAltDel(context.Background()); err == nil {
		t.Fatal("expected error sending to missing socket")
	}
}

func TestGetVersion_FakeServer(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "fc.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	defer os.Remove(sockPath)

	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/version":
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"firecracker_version":"1.0.0"}`))
			case "/actions":
				w.WriteHeader(http.StatusNoContent)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}),
	}
	go srv.Serve(ln)
	defer srv.Close()

	c := New(sockPath)

	status, err := c.GetVersion(context.Background())
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("GetVersion() status = %d, want 200", status)
	}

	if !c.Reachable(context.Background()) {
		t.Error("expected Reachable() true")
	}

	if err := c.SendCtrlAltDel(context.Background()); err != nil {
		t.Errorf("SendCtrlAltDel() error = %v", err)
	}
}
