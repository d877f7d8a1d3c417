package cook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ovenlink/ovenlink-core/internal/cloud"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/config"
	"github.com/ovenlink/ovenlink-core/internal/oven"
	"github.com/ovenlink/ovenlink-core/internal/recipe"
)

// historyTimeout bounds each history write so a slow disk can never
// stall frame processing for long.
const historyTimeout = 5 * time.Second

// runtime is everything the manager holds per discovered oven.
type runtime struct {
	info       cloud.DeviceInfo
	cache      *oven.StateCache
	dispatcher *oven.Dispatcher
	executor   *Executor
}

// Manager owns the per-device runtimes and exposes the service surface
// used by the host platform.
//
// It consumes frames from the cloud session, maintains one state
// cache, command dispatcher and recipe executor per oven, fans state
// changes out to subscribers, and records changes to history.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Manager struct {
	cmdCfg  config.CommandConfig
	grace   time.Duration
	sender  oven.Sender
	library *recipe.Library
	history oven.HistoryRepository
	logger  Logger

	mux *oven.Multiplexer

	onCookEvent     func(Execution)
	onDeviceAdded   func(cloud.DeviceInfo)
	onDeviceRemoved func(string)

	mu      sync.RWMutex
	devices map[string]*runtime
}

// ManagerConfig collects the manager's dependencies.
type ManagerConfig struct {
	// Command tunes the per-device dispatchers.
	Command config.CommandConfig

	// OfflineGrace is how long a running recipe survives disconnection.
	OfflineGrace time.Duration

	// Sender transmits commands, normally the cloud session.
	Sender oven.Sender

	// Library resolves recipe keys. Optional; StartRecipe fails
	// without it.
	Library *recipe.Library

	// History records state changes. Optional.
	History oven.HistoryRepository
}

// NewManager creates a device manager. Frames must be fed in via
// HandleFrame, typically wired to the cloud session's frame callback.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cmdCfg:  cfg.Command,
		grace:   cfg.OfflineGrace,
		sender:  cfg.Sender,
		library: cfg.Library,
		history: cfg.History,
		logger:  noopLogger{},
		mux:     oven.NewMultiplexer(0),
		devices: make(map[string]*runtime),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetOnCookEvent registers a callback for recipe execution transitions
// across all devices. Must be set before the first frame arrives.
func (m *Manager) SetOnCookEvent(fn func(Execution)) {
	m.onCookEvent = fn
}

// SetOnDeviceAdded registers a callback invoked when an oven appears in
// a device list frame. Must be set before the first frame arrives.
func (m *Manager) SetOnDeviceAdded(fn func(cloud.DeviceInfo)) {
	m.onDeviceAdded = fn
}

// SetOnDeviceRemoved registers a callback invoked when an oven drops
// off the account. Must be set before the first frame arrives.
func (m *Manager) SetOnDeviceRemoved(fn func(string)) {
	m.onDeviceRemoved = fn
}

// HandleFrame routes one inbound cloud frame. Intended to be wired to
// cloud.Session.SetOnFrame; it never blocks on subscribers.
func (m *Manager) HandleFrame(frame cloud.Frame) {
	switch frame.Command {
	case cloud.FrameDeviceList:
		m.syncDevices(frame.Payload)
	case cloud.FrameState:
		m.applyState(frame.Payload)
	default:
		m.logger.Debug("ignoring frame", "command", frame.Command)
	}
}

// HandleConnected propagates transport recovery to the executors.
func (m *Manager) HandleConnected() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rt := range m.devices {
		rt.executor.SetConnected(true)
	}
}

// HandleDisconnected propagates transport loss to the executors, which
// fail their runs if the outage outlasts the grace period.
func (m *Manager) HandleDisconnected(err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rt := range m.devices {
		rt.executor.SetConnected(false)
	}
}

// syncDevices reconciles the runtime set against a device list frame.
func (m *Manager) syncDevices(payload json.RawMessage) {
	devices, err := cloud.ParseDeviceList(payload)
	if err != nil {
		m.logger.Warn("malformed device list", "error", err)
		return
	}

	m.mu.Lock()
	var added []cloud.DeviceInfo
	var removed []string

	seen := make(map[string]struct{}, len(devices))
	for _, info := range devices {
		seen[info.CookerID] = struct{}{}
		if _, ok := m.devices[info.CookerID]; ok {
			continue
		}
		m.devices[info.CookerID] = m.newRuntime(info)
		added = append(added, info)
		m.logger.Info("oven discovered",
			"device_id", info.CookerID,
			"type", info.Type,
			"name", info.Name,
		)
	}

	for id, rt := range m.devices {
		if _, ok := seen[id]; ok {
			continue
		}
		rt.executor.Close()
		rt.dispatcher.Close()
		delete(m.devices, id)
		removed = append(removed, id)
		m.logger.Info("oven removed", "device_id", id)
	}
	m.mu.Unlock()

	// Callbacks run outside the lock; they may call back into the manager.
	if m.onDeviceAdded != nil {
		for _, info := range added {
			m.onDeviceAdded(info)
		}
	}
	if m.onDeviceRemoved != nil {
		for _, id := range removed {
			m.onDeviceRemoved(id)
		}
	}
}

// newRuntime assembles the per-device components. Caller holds m.mu.
func (m *Manager) newRuntime(info cloud.DeviceInfo) *runtime {
	version := oven.Version(info.Type)
	if version != oven.VersionV1 && version != oven.VersionV2 {
		m.logger.Warn("unknown oven type, assuming v1",
			"device_id", info.CookerID,
			"type", info.Type,
		)
		version = oven.VersionV1
	}

	cache := oven.NewStateCache(info.CookerID, version)
	dispatcher := oven.NewDispatcher(info.CookerID, cache, m.sender, oven.DispatcherConfig{
		AckTimeout: m.cmdCfg.GetAckTimeout(),
		QueueSize:  m.cmdCfg.QueueSize,
	})
	executor := NewExecutor(info.CookerID, dispatcher, m.mux.Subscribe(info.CookerID), m.grace)
	executor.SetLogger(m.logger)
	executor.SetOnTransition(m.handleCookEvent)

	return &runtime{
		info:       info,
		cache:      cache,
		dispatcher: dispatcher,
		executor:   executor,
	}
}

// applyState merges a state push into the device's cache and fans the
// resulting change set out to subscribers and history.
func (m *Manager) applyState(payload json.RawMessage) {
	var peek struct {
		CookerID string `json:"cookerId"`
	}
	if err := json.Unmarshal(payload, &peek); err != nil || peek.CookerID == "" {
		m.logger.Warn("state frame without device id", "error", err)
		return
	}

	rt, err := m.runtime(peek.CookerID)
	if err != nil {
		m.logger.Warn("state frame for unknown device", "device_id", peek.CookerID)
		return
	}

	cs, err := rt.cache.ApplyUpdate(payload)
	if err != nil {
		// Malformed pushes are dropped; the cache stays consistent.
		m.logger.Warn("dropping malformed state frame",
			"device_id", peek.CookerID,
			"error", err,
		)
		return
	}
	if cs == nil {
		return
	}

	m.mux.Publish(cs)
	m.recordHistory(cs.DeviceID, cs.Snapshot, oven.HistorySourcePush)
}

// handleCookEvent records a recipe transition to history and forwards
// it to the host platform.
func (m *Manager) handleCookEvent(exec Execution) {
	if rt, err := m.runtime(exec.DeviceID); err == nil {
		m.recordHistory(exec.DeviceID, rt.cache.Current(), oven.HistorySourceRecipe)
	}
	if m.onCookEvent != nil {
		m.onCookEvent(exec)
	}
}

// recordHistory persists one state change, when a repository is wired.
func (m *Manager) recordHistory(deviceID string, snap oven.Snapshot, source string) {
	if m.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if err := m.history.RecordChange(ctx, deviceID, snap, source); err != nil {
		m.logger.Error("recording state history",
			"device_id", deviceID,
			"source", source,
			"error", err,
		)
	}
}

// submit dispatches one command and, on success, records the snapshot
// it was validated against as a command-sourced history entry.
func (m *Manager) submit(ctx context.Context, rt *runtime, cmd oven.Command) error {
	if err := rt.dispatcher.Submit(ctx, cmd); err != nil {
		return err
	}
	m.recordHistory(rt.info.CookerID, rt.cache.Current(), oven.HistorySourceCommand)
	return nil
}

// runtime looks up the runtime for a device.
func (m *Manager) runtime(deviceID string) (*runtime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	return rt, nil
}

// Devices returns the discovered ovens.
func (m *Manager) Devices() []cloud.DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]cloud.DeviceInfo, 0, len(m.devices))
	for _, rt := range m.devices {
		devices = append(devices, rt.info)
	}
	return devices
}

// DeviceState returns the current merged snapshot for a device.
func (m *Manager) DeviceState(deviceID string) (oven.Snapshot, error) {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return oven.Snapshot{}, err
	}
	return rt.cache.Current(), nil
}

// Subscribe registers a consumer for a device's state change stream.
func (m *Manager) Subscribe(deviceID string) *oven.Subscription {
	return m.mux.Subscribe(deviceID)
}

// StartCook starts an ad-hoc cook with the given stages.
func (m *Manager) StartCook(ctx context.Context, deviceID string, stages []oven.Stage) error {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return err
	}
	return m.submit(ctx, rt, oven.Command{
		Type:   oven.CommandStartCook,
		Stages: stages,
	})
}

// StopCook stops whatever the oven is doing.
func (m *Manager) StopCook(ctx context.Context, deviceID string) error {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return err
	}
	return m.submit(ctx, rt, oven.Command{Type: oven.CommandStopCook})
}

// SetProbe sets the food probe target temperature in Celsius.
func (m *Manager) SetProbe(ctx context.Context, deviceID string, targetCelsius float64) error {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return err
	}
	return m.submit(ctx, rt, oven.Command{
		Type:               oven.CommandSetProbe,
		ProbeTargetCelsius: targetCelsius,
	})
}

// SetTemperatureUnit sets the oven's display unit.
func (m *Manager) SetTemperatureUnit(ctx context.Context, deviceID string, unit oven.TemperatureUnit) error {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return err
	}
	return m.submit(ctx, rt, oven.Command{
		Type: oven.CommandSetTemperatureUnit,
		Unit: unit,
	})
}

// SetLamp switches the oven lamp.
func (m *Manager) SetLamp(ctx context.Context, deviceID string, on bool) error {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return err
	}
	return m.submit(ctx, rt, oven.Command{
		Type:   oven.CommandSetLamp,
		LampOn: on,
	})
}

// StartRecipe compiles the named recipe for the device's hardware and
// begins executing it.
func (m *Manager) StartRecipe(ctx context.Context, deviceID, recipeKey string) error {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return err
	}
	if m.library == nil {
		return fmt.Errorf("%w: no recipe library configured", recipe.ErrNotFound)
	}

	rec, err := m.library.Get(recipeKey, rt.cache.Current().Version)
	if err != nil {
		return err
	}
	return rt.executor.Start(ctx, rec)
}

// CancelRecipe cancels the active recipe run on a device.
func (m *Manager) CancelRecipe(ctx context.Context, deviceID string) error {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return err
	}
	return rt.executor.Cancel(ctx)
}

// History returns recent recorded state changes for a device, newest
// first. The limit is clamped by the repository.
//
// Returns:
//   - ErrDeviceNotFound when the device is not on the account
//   - ErrHistoryDisabled when no repository is configured
func (m *Manager) History(ctx context.Context, deviceID string, limit int) ([]oven.HistoryEntry, error) {
	if _, err := m.runtime(deviceID); err != nil {
		return nil, err
	}
	if m.history == nil {
		return nil, ErrHistoryDisabled
	}
	return m.history.GetHistory(ctx, deviceID, limit)
}

// RecipeExecution returns the current or most recent run record.
func (m *Manager) RecipeExecution(deviceID string) (Execution, error) {
	rt, err := m.runtime(deviceID)
	if err != nil {
		return Execution{}, err
	}
	return rt.executor.Execution(), nil
}

// Close shuts down every device runtime and the subscriber fan-out.
func (m *Manager) Close() {
	m.mu.Lock()
	devices := m.devices
	m.devices = make(map[string]*runtime)
	m.mu.Unlock()

	for _, rt := range devices {
		rt.executor.Close()
		rt.dispatcher.Close()
	}
	m.mux.Close()
}
