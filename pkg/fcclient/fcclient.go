// Package fcclient talks to a running firecracker process's management
// API over its UNIX domain socket. Grounded on
// original_source/host-agent/orchestration/vm_manager.py::_make_api_request
// and services/core/pkg/vmm/firecracker/client.go's DialContext/http.Client
// pattern (that file's request-building shape, ported from a raw
// HTTP/1.1-over-unix-socket implementation to net/http for the timeout and
// response-parsing guarantees it gives for free).
package fcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
)

// socketTimeout bounds both connect and response-header read, matching the
// original client's 2-second socket timeout.
const socketTimeout = 2 * time.Second

const actionSendCtrlAltDel = "SendCtrlAltDel"

// Client issues requests against one VM's Firecracker management socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// New builds a Client bound to socketPath. Dialing is deferred to the
// first request; an absent socket simply fails that request.
func New(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: socketTimeout}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		socketPath: socketPath,
		http:       &http.Client{Transport: transport, Timeout: socketTimeout},
	}
}

// SendCtrlAltDel asks the guest to shut itself down gracefully via
// PUT /actions {"action_type": "SendCtrlAltDel"}.
func (c *Client) SendCtrlAltDel(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"action_type": actionSendCtrlAltDel})
	status, _, err := c.do(ctx, http.MethodPut, "/actions", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return apierr.New(apierr.Hypervisor, fmt.Sprintf("SendCtrlAltDel returned status %d", status))
	}
	return nil
}

// GetVersion probes GET /version, used as a readiness/liveness check.
func (c *Client) GetVersion(ctx context.Context) (int, error) {
	status, _, err := c.do(ctx, http.MethodGet, "/version", nil)
	return status, err
}

// GetMachineConfig probes GET /machine-config, a secondary liveness check
// used when /version is unreachable but the socket still accepts
// connections.
func (c *Client) GetMachineConfig(ctx context.Context) (int, error) {
	status, _, err := c.do(ctx, http.MethodGet, "/machine-config", nil)
	return status, err
}

// Reachable reports whether either liveness probe returns HTTP 200,
// grounded on vm_manager.py::status_vm's fallback-probe order.
func (c *Client) Reachable(ctx context.Context) bool {
	if status, err := c.GetVersion(ctx); err == nil && status == http.StatusOK {
		return true
	}
	status, err := c.GetMachineConfig(ctx)
	return err == nil && status == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, socketTimeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, reqBody)
	if err != nil {
		return 0, nil, apierr.Wrap(apierr.Internal, "build firecracker API request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, apierr.Wrap(apierr.Hypervisor, fmt.Sprintf("firecracker API request %s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apierr.Wrap(apierr.Hypervisor, "read firecracker API response", err)
	}
	return resp.StatusCode, respBody, nil
}
