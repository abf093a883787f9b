// Package lifecycle orchestrates the create/start/stop/reboot/delete/
// recover/status state machine on top of pkg/storage, pkg/network,
// pkg/fcconfig, pkg/supervisor, pkg/fcclient, and pkg/statestore, plus
// agent-startup reconciliation. Grounded on
// original_source/host-agent/orchestration/{vm_manager,lifecycle}.py.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/fcclient"
	"github.com/cloudstack/firecracker-agent/pkg/fcconfig"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/network"
	"github.com/cloudstack/firecracker-agent/pkg/statestore"
	"github.com/cloudstack/firecracker-agent/pkg/storage"
	"github.com/cloudstack/firecracker-agent/pkg/supervisor"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
	"golang.org/x/sync/errgroup"
)

const defaultStopTimeout = 30 * time.Second

// VMInfo is one entry of a discovery or listing pass.
type VMInfo struct {
	Name       string
	Status     string
	ConfigFile string
}

// Orchestrator ties every component into the per-VM lifecycle state
// machine. It carries no mutable state of its own beyond the configured
// defaults and the state store; every query re-derives from disk and the
// OS, matching the supervisor's own posture.
type Orchestrator struct {
	Host                 vmspec.HostDirs
	DefaultStorageDriver string
	DefaultNetDriver     string
	DefaultBridge        string
	DefaultUplink        string
	Store                *statestore.Store
	Log                  logging.Logger
}

func New(host vmspec.HostDirs, defaultStorageDriver, defaultNetDriver, defaultBridge, defaultUplink string, store *statestore.Store, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		Host:                 host,
		DefaultStorageDriver: defaultStorageDriver,
		DefaultNetDriver:     defaultNetDriver,
		DefaultBridge:        defaultBridge,
		DefaultUplink:        defaultUplink,
		Store:                store,
		Log:                  log,
	}
}

func (o *Orchestrator) bareSpec(vmName string) *vmspec.Spec {
	return &vmspec.Spec{
		Name: vmName,
		Host: o.Host,
		Net:  vmspec.NetSpec{Driver: o.DefaultNetDriver, HostBridge: o.DefaultBridge, Uplink: o.DefaultUplink},
	}
}

func (o *Orchestrator) pathsForName(vmName string) vmspec.Paths {
	return vmspec.DerivePaths(o.bareSpec(vmName))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// --- Create --------------------------------------------------------------

// Create runs the full create pipeline with LIFO rollback on failure.
func (o *Orchestrator) Create(ctx context.Context, payload map[string]interface{}, timeout time.Duration) (*vmspec.Spec, error) {
	nameHint := vmspec.RawNameHint(payload)
	if nameHint == "" {
		nameHint = "unnamed"
	}
	if err := o.Store.SaveCreatePayload(nameHint, payload); err != nil {
		o.Log.Warn(ctx, "failed to persist raw create payload", map[string]interface{}{"vm": nameHint, "error": err.Error()})
	}

	spec, err := vmspec.Ingest(payload, o.Host, o.DefaultStorageDriver, o.DefaultNetDriver, o.DefaultBridge, o.DefaultUplink)
	if err != nil {
		return nil, err
	}
	if spec.Name != nameHint {
		if err := o.Store.SaveCreatePayload(spec.Name, payload); err != nil {
			o.Log.Warn(ctx, "failed to persist raw create payload under validated name", map[string]interface{}{"vm": spec.Name, "error": err.Error()})
		}
	}

	paths := vmspec.DerivePaths(spec)
	var cleanups []func()
	rollback := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	storageBackend, err := storage.NewBackend(spec, paths)
	if err != nil {
		return nil, err
	}
	if err := storageBackend.Prepare(ctx); err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { storageBackend.Cleanup(ctx, o.Log) })

	if spec.SSHPubKey != "" {
		injectSSHKey(ctx, o.Log, storageBackend.DevicePath(), spec.SSHPubKey, "root")
	}

	if len(spec.NICs) > 0 {
		if err := vmspec.RequireVLAN(spec.Net.Driver, spec.NICs); err != nil {
			rollback()
			return nil, err
		}
	}
	netBackend, err := network.NewBackend(spec, paths, o.Log)
	if err != nil {
		rollback()
		return nil, err
	}
	if _, err := netBackend.Prepare(ctx); err != nil {
		rollback()
		return nil, err
	}
	cleanups = append(cleanups, func() { netBackend.Teardown(ctx) })

	if err := o.Store.SaveNetworkSnapshot(spec.Name, o.networkSnapshotFromSpec(spec)); err != nil {
		rollback()
		return nil, apierr.Wrap(apierr.Internal, "persist network snapshot", err)
	}

	if err := fcconfig.Write(spec, paths, storageBackend.DevicePath()); err != nil {
		rollback()
		return nil, err
	}

	sup := supervisor.New()
	cleanups = append(cleanups, func() { sup.Stop(ctx, paths, defaultStopTimeout) })
	pid, err := sup.Start(ctx, spec, paths)
	if err != nil {
		rollback()
		return nil, err
	}
	if pid != 0 {
		writePIDFile(paths.PIDFile, pid)
	} else {
		o.Log.Warn(ctx, "firecracker pid not found after start", map[string]interface{}{"vm": spec.Name})
	}

	return spec, nil
}

// --- Start / Stop / Reboot ------------------------------------------------

// Start launches an existing VM's hypervisor process. payload is optional:
// when nil, the VM spec is reconstructed from persisted state.
func (o *Orchestrator) Start(ctx context.Context, vmName string, payload map[string]interface{}, timeout time.Duration) error {
	spec, paths, err := o.resolveSpec(vmName, payload)
	if err != nil {
		return err
	}
	if !fileExists(paths.ConfigFile) {
		return apierr.NotFoundf("VM %s not found", vmName)
	}

	sup := supervisor.New()
	pid, err := sup.Start(ctx, spec, paths)
	if err != nil {
		return err
	}
	if pid != 0 {
		writePIDFile(paths.PIDFile, pid)
	} else {
		o.Log.Warn(ctx, "firecracker pid not found after start", map[string]interface{}{"vm": vmName})
	}
	return nil
}

// Stop is idempotent: a VM with no recorded PID or socket is treated as
// already stopped and returns success.
func (o *Orchestrator) Stop(ctx context.Context, vmName string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	paths := o.pathsForName(vmName)
	o.stopByPaths(ctx, paths, timeout)
	return nil
}

func (o *Orchestrator) stopByPaths(ctx context.Context, paths vmspec.Paths, timeout time.Duration) {
	if fileExists(paths.SocketFile) {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = fcclient.New(paths.SocketFile).SendCtrlAltDel(cctx)
		cancel()
	}
	sup := supervisor.New()
	_ = sup.Stop(ctx, paths, timeout)
	os.Remove(paths.PIDFile)
	os.Remove(paths.SocketFile)
}

// Reboot stops then restarts a VM, pausing briefly between the two to let
// the hypervisor process fully exit.
func (o *Orchestrator) Reboot(ctx context.Context, vmName string, payload map[string]interface{}, timeout time.Duration) error {
	if err := o.Stop(ctx, vmName, timeout); err != nil {
		return err
	}
	time.Sleep(2 * time.Second)
	return o.Start(ctx, vmName, payload, timeout)
}

// --- Delete ----------------------------------------------------------------

// Delete stops the VM, tears down networking, removes storage, and deletes
// every on-disk artifact. Unlike stop, delete on an unknown VM is an error.
func (o *Orchestrator) Delete(ctx context.Context, vmName string) error {
	paths := o.pathsForName(vmName)
	if !fileExists(paths.ConfigFile) {
		return apierr.NotFoundf("VM %s not found", vmName)
	}

	spec, specPaths, err := o.reconstructSpec(vmName)
	if err != nil {
		o.Log.Warn(ctx, "delete: could not reconstruct full spec, using defaults", map[string]interface{}{"vm": vmName, "error": err.Error()})
		spec = o.bareSpec(vmName)
		specPaths = vmspec.DerivePaths(spec)
	}

	o.stopByPaths(ctx, specPaths, defaultStopTimeout)

	if netBackend, err := network.NewBackend(spec, specPaths, o.Log); err != nil {
		o.Log.Warn(ctx, "delete: networking teardown skipped", map[string]interface{}{"vm": vmName, "error": err.Error()})
	} else {
		netBackend.Teardown(ctx)
	}

	if storageBackend, err := storage.NewBackend(spec, specPaths); err != nil {
		o.Log.Warn(ctx, "delete: storage cleanup skipped", map[string]interface{}{"vm": vmName, "error": err.Error()})
	} else if err := storageBackend.Delete(ctx); err != nil {
		o.Log.Error(ctx, "delete: storage cleanup failed", map[string]interface{}{"vm": vmName, "error": err.Error()})
		return err
	}

	os.Remove(specPaths.ConfigFile)
	os.Remove(specPaths.LogFile)
	if err := o.Store.DeleteNetworkSnapshot(vmName); err != nil {
		o.Log.Warn(ctx, "delete: failed to remove network snapshot", map[string]interface{}{"vm": vmName, "error": err.Error()})
	}
	return nil
}

// --- Status / discovery ----------------------------------------------------

// Status never errors: an unreachable hypervisor or missing VM both report
// "poweroff".
func (o *Orchestrator) Status(ctx context.Context, vmName string) string {
	paths := o.pathsForName(vmName)
	sup := supervisor.New()
	if sup.Running(ctx, vmName, paths, o.Host.FirecrackerBin) {
		return "poweron"
	}
	if !fileExists(paths.SocketFile) {
		return "poweroff"
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if fcclient.New(paths.SocketFile).Reachable(cctx) {
		return "poweron"
	}
	return "poweroff"
}

// Discover scans conf_dir for VM configuration files, skipping network
// snapshots and the running-set file.
func (o *Orchestrator) Discover(ctx context.Context) ([]VMInfo, error) {
	entries, err := os.ReadDir(o.Host.ConfDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierr.Wrap(apierr.Internal, "scan config directory", err)
	}
	var out []VMInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")
		if strings.HasPrefix(stem, "network-config-") || stem == "vm-states" {
			continue
		}
		out = append(out, VMInfo{
			Name:       stem,
			Status:     o.Status(ctx, stem),
			ConfigFile: filepath.Join(o.Host.ConfDir, name),
		})
	}
	return out, nil
}

// --- Recover ---------------------------------------------------------------

// Recover re-programs a VM's dataplane without touching the hypervisor
// process, trying the persisted network snapshot first, then a
// caller-supplied fallback spec, then a reconstruction from the persisted
// create payload or saved Firecracker config.
func (o *Orchestrator) Recover(ctx context.Context, vmName string, fallbackPayload map[string]interface{}) error {
	if snap, ok, err := o.Store.LoadNetworkSnapshot(vmName); err == nil && ok {
		spec := o.specFromNetworkSnapshot(vmName, snap)
		if err := o.prepareNetworkingAndSave(ctx, spec); err == nil {
			o.Log.Info(ctx, "recovered networking from saved snapshot", map[string]interface{}{"vm": vmName})
			return nil
		} else {
			o.Log.Warn(ctx, "snapshot-based recovery failed, falling back", map[string]interface{}{"vm": vmName, "error": err.Error()})
		}
	}

	if fallbackPayload != nil {
		spec, err := vmspec.Ingest(fallbackPayload, o.Host, o.DefaultStorageDriver, o.DefaultNetDriver, o.DefaultBridge, o.DefaultUplink)
		if err == nil {
			if err := o.prepareNetworkingAndSave(ctx, spec); err == nil {
				o.Log.Info(ctx, "recovered networking from provided spec", map[string]interface{}{"vm": vmName})
				return nil
			}
		}
	}

	spec, _, err := o.reconstructSpec(vmName)
	if err != nil {
		return err
	}
	if err := o.prepareNetworkingAndSave(ctx, spec); err != nil {
		return err
	}
	o.Log.Info(ctx, "recovered networking from saved config", map[string]interface{}{"vm": vmName})
	return nil
}

// RecoverAll runs Recover for every discovered VM concurrently — disjoint
// VM names share no host resource that this path mutates directly, so
// recovery fans out across an errgroup; individual failures are logged and
// never abort the pass.
func (o *Orchestrator) RecoverAll(ctx context.Context) error {
	discovered, err := o.Discover(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range discovered {
		v := v
		g.Go(func() error {
			if err := o.Recover(gctx, v.Name, nil); err != nil {
				o.Log.Warn(gctx, "recover-all: per-vm recovery failed", map[string]interface{}{"vm": v.Name, "error": err.Error()})
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) prepareNetworkingAndSave(ctx context.Context, spec *vmspec.Spec) error {
	paths := vmspec.DerivePaths(spec)
	netBackend, err := network.NewBackend(spec, paths, o.Log)
	if err != nil {
		return err
	}
	if _, err := netBackend.Prepare(ctx); err != nil {
		return err
	}
	return o.Store.SaveNetworkSnapshot(spec.Name, o.networkSnapshotFromSpec(spec))
}

// --- Startup reconciliation -------------------------------------------------

// StartupReconcile classifies this agent start as a host restart or an
// agent-only restart by comparing the persisted running set against what
// is actually running now, then dispatches accordingly.
func (o *Orchestrator) StartupReconcile(ctx context.Context) error {
	discovered, err := o.Discover(ctx)
	if err != nil {
		return err
	}
	running := map[string]bool{}
	for _, v := range discovered {
		if v.Status == "poweron" {
			running[v.Name] = true
		}
	}

	saved, err := o.Store.LoadRunningSet()
	if err != nil {
		o.Log.Warn(ctx, "failed to load running-set snapshot", map[string]interface{}{"error": err.Error()})
		saved = statestore.RunningSet{}
	}

	if statestore.IsHostRestart(saved, running) {
		o.Log.Info(ctx, "host restart detected, restarting previously running VMs", map[string]interface{}{"count": len(saved)})
		return o.startupRestart(ctx, saved)
	}
	o.Log.Info(ctx, "agent restart detected, recovering networking only", map[string]interface{}{"count": len(discovered)})
	return o.startupRecoveryOnly(ctx, discovered)
}

func (o *Orchestrator) startupRestart(ctx context.Context, saved statestore.RunningSet) error {
	g, gctx := errgroup.WithContext(ctx)
	for vmName := range saved {
		vmName := vmName
		g.Go(func() error {
			spec, paths, err := o.reconstructSpec(vmName)
			if err != nil {
				o.Log.Error(gctx, "failed to load config for restart", map[string]interface{}{"vm": vmName, "error": err.Error()})
				return nil
			}
			if netBackend, err := network.NewBackend(spec, paths, o.Log); err != nil {
				o.Log.Warn(gctx, "restart: networking backend unavailable", map[string]interface{}{"vm": vmName, "error": err.Error()})
			} else if _, err := netBackend.Prepare(gctx); err != nil {
				o.Log.Warn(gctx, "restart: networking recovery failed", map[string]interface{}{"vm": vmName, "error": err.Error()})
			}

			sup := supervisor.New()
			pid, err := sup.Start(gctx, spec, paths)
			if err != nil {
				o.Log.Error(gctx, "failed to restart vm", map[string]interface{}{"vm": vmName, "error": err.Error()})
				return nil
			}
			if pid != 0 {
				writePIDFile(paths.PIDFile, pid)
			}
			o.Log.Info(gctx, "restarted vm", map[string]interface{}{"vm": vmName})
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) startupRecoveryOnly(ctx context.Context, discovered []VMInfo) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range discovered {
		v := v
		if v.Status != "poweron" && v.Status != "unknown" {
			continue
		}
		g.Go(func() error {
			if err := o.Recover(gctx, v.Name, nil); err != nil {
				o.Log.Warn(gctx, "agent-restart recovery failed", map[string]interface{}{"vm": v.Name, "error": err.Error()})
			}
			return nil
		})
	}
	return g.Wait()
}

// GracefulShutdownAll stops every currently-running discovered VM
// concurrently.
func (o *Orchestrator) GracefulShutdownAll(ctx context.Context) error {
	discovered, err := o.Discover(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range discovered {
		v := v
		if v.Status != "poweron" {
			continue
		}
		g.Go(func() error {
			if err := o.Stop(gctx, v.Name, defaultStopTimeout); err != nil {
				o.Log.Error(gctx, "graceful shutdown: stop failed", map[string]interface{}{"vm": v.Name, "error": err.Error()})
			}
			return nil
		})
	}
	return g.Wait()
}

// SaveStates persists the set of currently-running VMs so a later startup
// can classify itself as a host restart or an agent restart.
func (o *Orchestrator) SaveStates(ctx context.Context) error {
	discovered, err := o.Discover(ctx)
	if err != nil {
		return err
	}
	set := statestore.RunningSet{}
	now := time.Now()
	for _, v := range discovered {
		if v.Status == "poweron" {
			set[v.Name] = statestore.RunningEntry{Status: v.Status, Timestamp: now, ConfigPath: v.ConfigFile}
		}
	}
	return o.Store.SaveRunningSet(set)
}

// --- Spec reconstruction ----------------------------------------------------

// resolveSpec prefers an explicitly supplied payload (start/reboot request
// bodies may carry one) and falls back to reconstructing from persisted
// state.
func (o *Orchestrator) resolveSpec(vmName string, payload map[string]interface{}) (*vmspec.Spec, vmspec.Paths, error) {
	if payload != nil {
		spec, err := vmspec.Ingest(payload, o.Host, o.DefaultStorageDriver, o.DefaultNetDriver, o.DefaultBridge, o.DefaultUplink)
		if err != nil {
			return nil, vmspec.Paths{}, err
		}
		return spec, vmspec.DerivePaths(spec), nil
	}
	return o.reconstructSpec(vmName)
}

// reconstructSpec rebuilds a full Spec for a VM that is not present in the
// current request, preferring the persisted create payload (which
// carries full fidelity: storage driver, VLANs, SSH key) and falling back
// to parsing the saved Firecracker config file directly (lower fidelity:
// no VLAN, storage driver assumed "file", grounded on
// lifecycle.py::_cfg_to_spec, which the original source itself documents
// as "simplified").
func (o *Orchestrator) reconstructSpec(vmName string) (*vmspec.Spec, vmspec.Paths, error) {
	if payload, ok, err := o.Store.LoadCreatePayload(vmName); err == nil && ok {
		if spec, err := vmspec.Ingest(payload, o.Host, o.DefaultStorageDriver, o.DefaultNetDriver, o.DefaultBridge, o.DefaultUplink); err == nil {
			return spec, vmspec.DerivePaths(spec), nil
		}
	}
	spec, err := o.specFromSavedConfig(vmName)
	if err != nil {
		return nil, vmspec.Paths{}, err
	}
	return spec, vmspec.DerivePaths(spec), nil
}

func (o *Orchestrator) specFromSavedConfig(vmName string) (*vmspec.Spec, error) {
	configPath := filepath.Join(o.Host.ConfDir, vmName+".json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, apierr.NotFoundf("no configuration found for VM %s", vmName)
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "parse saved firecracker config", err)
	}

	var nics []vmspec.NIC
	if ifaces, ok := cfg["network-interfaces"].([]interface{}); ok {
		for i, raw := range ifaces {
			m, _ := raw.(map[string]interface{})
			ifaceID, _ := m["iface_id"].(string)
			deviceID := digitsOf(ifaceID)
			if deviceID < 0 {
				deviceID = i
			}
			mac, _ := m["guest_mac"].(string)
			nics = append(nics, vmspec.NIC{DeviceID: deviceID, MAC: mac})
		}
	}

	cpus, memMiB := 1, 512
	if mc, ok := cfg["machine-config"].(map[string]interface{}); ok {
		if v, ok := mc["vcpu_count"].(float64); ok {
			cpus = int(v)
		}
		if v, ok := mc["mem_size_mib"].(float64); ok {
			memMiB = int(v)
		}
	}

	var kernel, bootArgs string
	if bs, ok := cfg["boot-source"].(map[string]interface{}); ok {
		kernel, _ = bs["kernel_image_path"].(string)
		bootArgs, _ = bs["boot_args"].(string)
	}

	var image string
	if drives, ok := cfg["drives"].([]interface{}); ok && len(drives) > 0 {
		if d0, ok := drives[0].(map[string]interface{}); ok {
			image, _ = d0["path_on_host"].(string)
		}
	}

	return &vmspec.Spec{
		Name:     vmName,
		CPUs:     cpus,
		MemMiB:   memMiB,
		NICs:     nics,
		Kernel:   kernel,
		Image:    image,
		BootArgs: bootArgs,
		Storage:  vmspec.StorageSpec{Driver: "file"},
		Net:      vmspec.NetSpec{Driver: o.DefaultNetDriver, HostBridge: o.DefaultBridge, Uplink: o.DefaultUplink},
		Host:     o.Host,
	}, nil
}

func (o *Orchestrator) specFromNetworkSnapshot(vmName string, snap *statestore.NetworkSnapshot) *vmspec.Spec {
	nics := make([]vmspec.NIC, len(snap.NICs))
	for i, n := range snap.NICs {
		nics[i] = vmspec.NIC{
			DeviceID:     n.DeviceID,
			MAC:          n.MAC,
			IP:           n.IP,
			Netmask:      n.Netmask,
			Gateway:      n.Gateway,
			VLAN:         n.VLAN,
			BroadcastURI: n.BroadcastURI,
		}
	}
	return &vmspec.Spec{
		Name: vmName,
		NICs: nics,
		Net:  vmspec.NetSpec{Driver: snap.Driver, HostBridge: snap.Bridge, Uplink: snap.Uplink},
		Host: o.Host,
	}
}

func (o *Orchestrator) networkSnapshotFromSpec(spec *vmspec.Spec) *statestore.NetworkSnapshot {
	nics := make([]statestore.NetworkSnapshotNIC, len(spec.NICs))
	for i, n := range spec.NICs {
		nics[i] = statestore.NetworkSnapshotNIC{
			DeviceID:     n.DeviceID,
			MAC:          n.MAC,
			IP:           n.IP,
			Netmask:      n.Netmask,
			Gateway:      n.Gateway,
			VLAN:         n.VLAN,
			BroadcastURI: n.BroadcastURI,
		}
	}
	return &statestore.NetworkSnapshot{
		VMName: spec.Name,
		Driver: spec.Net.Driver,
		Bridge: spec.Net.HostBridge,
		Uplink: spec.Net.Uplink,
		NICs:   nics,
	}
}

// digitsOf concatenates every digit in s into one number (e.g. "eth0" -> 0,
// "eth12" -> 12, "a1b2" -> 12), mirroring _cfg_to_spec's
// "".join(filter(str.isdigit, iface_id)) reconstruction. Returns -1 if s
// contains no digits.
func digitsOf(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return -1
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return -1
	}
	return n
}

func writePIDFile(path string, pid int) {
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d", pid)), 0o644); err != nil {
		return
	}
}
