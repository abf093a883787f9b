// Package statestore persists three on-disk artifacts: the per-VM network
// snapshot, the unredacted create payload, and the
// host-wide running-set snapshot. Every write goes through a temp-file +
// atomic rename, grounded on original_source/host-agent/state/manager.py
// and config/manager.py's save_network_config (generalized here to
// actually use atomic rename, since the Python source only does so for the
// running-set file and writes the network-config file directly).
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store resolves artifact paths under the agent's configured roots.
type Store struct {
	RunDir     string
	PayloadDir string
}

func New(runDir, payloadDir string) *Store {
	return &Store{RunDir: runDir, PayloadDir: payloadDir}
}

// writeAtomic writes data to a temp file in the same directory as path and
// renames it into place, so readers never observe a partial write.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file into %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// --- Network snapshot ---------------------------------------------------

// NetworkSnapshotNIC is the persisted view of one NIC in a network snapshot.
type NetworkSnapshotNIC struct {
	DeviceID     int    `json:"device_id"`
	MAC          string `json:"mac"`
	IP           string `json:"ip"`
	Netmask      string `json:"netmask"`
	Gateway      string `json:"gateway"`
	VLAN         *int   `json:"vlan"`
	BroadcastURI string `json:"broadcast_uri,omitempty"`
}

// NetworkSnapshot is the persisted {driver, bridge, uplink, nics} record.
type NetworkSnapshot struct {
	VMName string               `json:"vm_name"`
	Driver string               `json:"driver"`
	Bridge string               `json:"bridge"`
	Uplink string               `json:"uplink"`
	NICs   []NetworkSnapshotNIC `json:"nics"`
}

func (s *Store) networkConfigPath(vmName string) string {
	return filepath.Join(s.RunDir, fmt.Sprintf("network-config-%s.json", vmName))
}

func (s *Store) SaveNetworkSnapshot(vmName string, snap *NetworkSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal network snapshot for %s: %w", vmName, err)
	}
	return writeAtomic(s.networkConfigPath(vmName), data, 0o644)
}

func (s *Store) LoadNetworkSnapshot(vmName string) (*NetworkSnapshot, bool, error) {
	var snap NetworkSnapshot
	ok, err := readJSON(s.networkConfigPath(vmName), &snap)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &snap, true, nil
}

func (s *Store) DeleteNetworkSnapshot(vmName string) error {
	if err := os.Remove(s.networkConfigPath(vmName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove network snapshot for %s: %w", vmName, err)
	}
	return nil
}

// --- Create payload -------------------------------------------------------

func (s *Store) createPayloadPath(vmName string) string {
	return filepath.Join(s.PayloadDir, fmt.Sprintf("create-spec-%s.json", vmName))
}

// SaveCreatePayload persists the raw orchestrator payload before any
// parsing, so it survives a subsequent parse failure — including one where
// the name itself is rejected; the payload file is retained either way.
// The file holds the decoded payload re-encoded as indented JSON: its
// content is kept unredacted, but the submitted bytes (key order,
// whitespace, number formatting) are not preserved.
func (s *Store) SaveCreatePayload(vmName string, payload map[string]interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal create payload for %s: %w", vmName, err)
	}
	return writeAtomic(s.createPayloadPath(vmName), data, 0o600)
}

// LoadCreatePayload returns the raw, unredacted payload. Callers that
// expose it externally (e.g. the "details" HTTP handler) must redact it
// themselves via security.RedactPayload; the on-disk copy stays unredacted.
func (s *Store) LoadCreatePayload(vmName string) (map[string]interface{}, bool, error) {
	var payload map[string]interface{}
	ok, err := readJSON(s.createPayloadPath(vmName), &payload)
	if !ok || err != nil {
		return nil, ok, err
	}
	return payload, true, nil
}

func (s *Store) DeleteCreatePayload(vmName string) error {
	if err := os.Remove(s.createPayloadPath(vmName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove create payload for %s: %w", vmName, err)
	}
	return nil
}

// --- Running-set snapshot --------------------------------------------------

// RunningEntry is one VM's record in the running-set snapshot.
type RunningEntry struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	ConfigPath string    `json:"config_path"`
}

// RunningSet is the host-wide {vm_name -> entry} mapping.
type RunningSet map[string]RunningEntry

func (s *Store) runningSetPath() string {
	return filepath.Join(s.RunDir, "vm-states.json")
}

// SaveRunningSet persists the given set as-is; lifecycle's SaveStates fills
// it with only the VMs currently observed "poweron".
func (s *Store) SaveRunningSet(set RunningSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal running set: %w", err)
	}
	return writeAtomic(s.runningSetPath(), data, 0o644)
}

func (s *Store) LoadRunningSet() (RunningSet, error) {
	set := RunningSet{}
	_, err := readJSON(s.runningSetPath(), &set)
	if err != nil {
		return nil, err
	}
	return set, nil
}

// IsHostRestart classifies a startup as a host restart when none of the
// previously-saved running VMs are in currentlyRunning; otherwise it is an
// agent restart.
func IsHostRestart(saved RunningSet, currentlyRunning map[string]bool) bool {
	for name := range saved {
		if currentlyRunning[name] {
			return false
		}
	}
	return true
}
