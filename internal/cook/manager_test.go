package cook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ovenlink/ovenlink-core/internal/cloud"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/config"
	"github.com/ovenlink/ovenlink-core/internal/oven"
	"github.com/ovenlink/ovenlink-core/internal/recipe"
)

// fakeSender acknowledges every cloud command instantly.
type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, deviceID, command string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, command)
	return f.err
}

func (f *fakeSender) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func deviceListFrame(t *testing.T, devices ...cloud.DeviceInfo) cloud.Frame {
	t.Helper()
	payload, err := json.Marshal(devices)
	if err != nil {
		t.Fatalf("marshalling device list: %v", err)
	}
	return cloud.Frame{Command: cloud.FrameDeviceList, Payload: payload}
}

func stateFrame(t *testing.T, deviceID, body string) cloud.Frame {
	t.Helper()
	payload := `{"cookerId": "` + deviceID + `", "type": "EVENT_APO_STATE", "state": ` + body + `}`
	return cloud.Frame{Command: cloud.FrameState, Payload: json.RawMessage(payload)}
}

func testLibrary(t *testing.T) *recipe.Library {
	t.Helper()
	lib, err := recipe.ParseLibrary([]byte(`recipes:
  roast:
    name: Roast
    stages:
      - name: hot
        temperature:
          value: 200
          temperature_unit: C
          mode: dry
        timer:
          seconds: 1800
        fan_speed: 100
        heating_elements:
          rear: true
`))
	if err != nil {
		t.Fatalf("parsing test library: %v", err)
	}
	return lib
}

func newTestManager(t *testing.T, sender oven.Sender) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		Command:      config.CommandConfig{AckTimeout: 5, QueueSize: 4},
		OfflineGrace: time.Minute,
		Sender:       sender,
		Library:      testLibrary(t),
	})
	t.Cleanup(m.Close)

	m.HandleFrame(deviceListFrame(t,
		cloud.DeviceInfo{CookerID: "oven-1", Type: "oven_v2", Name: "Kitchen"},
	))
	return m
}

func TestManager_DeviceDiscovery(t *testing.T) {
	m := newTestManager(t, &fakeSender{})

	devices := m.Devices()
	if len(devices) != 1 || devices[0].CookerID != "oven-1" {
		t.Fatalf("Devices() = %v", devices)
	}

	snap, err := m.DeviceState("oven-1")
	if err != nil {
		t.Fatalf("DeviceState() error = %v", err)
	}
	if snap.Version != oven.VersionV2 {
		t.Errorf("Version = %v, want v2", snap.Version)
	}

	if _, err := m.DeviceState("oven-9"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeviceState(unknown) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestManager_DeviceRemoval(t *testing.T) {
	m := newTestManager(t, &fakeSender{})

	// An empty list removes the runtime.
	m.HandleFrame(deviceListFrame(t))

	if devices := m.Devices(); len(devices) != 0 {
		t.Errorf("Devices() = %v, want none", devices)
	}
	if err := m.StopCook(context.Background(), "oven-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("StopCook() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestManager_StateFrameFansOut(t *testing.T) {
	m := newTestManager(t, &fakeSender{})

	sub := m.Subscribe("oven-1")
	defer sub.Close()

	m.HandleFrame(stateFrame(t, "oven-1", `{"nodes": {"lamp": {"on": true}}}`))

	select {
	case cs := <-sub.Updates():
		if !cs.Snapshot.LampOn {
			t.Error("LampOn = false, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("change set not delivered")
	}

	snap, err := m.DeviceState("oven-1")
	if err != nil {
		t.Fatalf("DeviceState() error = %v", err)
	}
	if !snap.LampOn {
		t.Error("cache not updated")
	}
}

func TestManager_MalformedStateFrameDropped(t *testing.T) {
	m := newTestManager(t, &fakeSender{})

	m.HandleFrame(stateFrame(t, "oven-1", `{"nodes": {"fan": {"speed": 50}}}`))
	before, _ := m.DeviceState("oven-1")

	m.HandleFrame(cloud.Frame{Command: cloud.FrameState, Payload: json.RawMessage(`{{{`)})
	m.HandleFrame(stateFrame(t, "oven-1", `{"nodes": {"fan": {"speed": "fast"}}}`))
	m.HandleFrame(stateFrame(t, "oven-9", `{"nodes": {"fan": {"speed": 10}}}`))

	after, _ := m.DeviceState("oven-1")
	if before != after {
		t.Errorf("malformed frames mutated state: %+v -> %+v", before, after)
	}
}

func TestManager_ServiceCalls(t *testing.T) {
	sender := &fakeSender{}
	m := newTestManager(t, sender)
	ctx := context.Background()

	stage := oven.Stage{
		Mode:            oven.ModeDry,
		TargetCelsius:   200,
		FanSpeed:        100,
		HeatingElements: oven.HeatingElements{Rear: true},
	}

	if err := m.StartCook(ctx, "oven-1", []oven.Stage{stage}); err != nil {
		t.Errorf("StartCook() error = %v", err)
	}
	if err := m.StopCook(ctx, "oven-1"); err != nil {
		t.Errorf("StopCook() error = %v", err)
	}
	if err := m.SetTemperatureUnit(ctx, "oven-1", oven.UnitFahrenheit); err != nil {
		t.Errorf("SetTemperatureUnit() error = %v", err)
	}
	if err := m.SetLamp(ctx, "oven-1", true); err != nil {
		t.Errorf("SetLamp() error = %v", err)
	}

	want := []string{"CMD_APO_START", "CMD_APO_STOP", "CMD_APO_SET_TEMPERATURE_UNIT", "CMD_APO_SET_LAMP"}
	got := sender.commands()
	if len(got) != len(want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestManager_SetProbeRequiresProbe(t *testing.T) {
	m := newTestManager(t, &fakeSender{})
	ctx := context.Background()

	// No probe connected yet: rejected locally.
	if err := m.SetProbe(ctx, "oven-1", 63); !errors.Is(err, oven.ErrValidation) {
		t.Errorf("SetProbe() error = %v, want ErrValidation", err)
	}

	m.HandleFrame(stateFrame(t, "oven-1", `{"nodes": {"probe": {"connected": true}}}`))

	if err := m.SetProbe(ctx, "oven-1", 63); err != nil {
		t.Errorf("SetProbe() after probe connect error = %v", err)
	}
}

func TestManager_StartRecipe(t *testing.T) {
	sender := &fakeSender{}
	m := newTestManager(t, sender)
	ctx := context.Background()

	if err := m.StartRecipe(ctx, "oven-1", "roast"); err != nil {
		t.Fatalf("StartRecipe() error = %v", err)
	}

	exec, err := m.RecipeExecution("oven-1")
	if err != nil {
		t.Fatalf("RecipeExecution() error = %v", err)
	}
	if exec.State != StateRunning || exec.RecipeKey != "roast" {
		t.Errorf("execution = %+v, want running roast", exec)
	}

	if got := sender.commands(); len(got) != 1 || got[0] != "CMD_APO_START" {
		t.Errorf("sent = %v, want the stage-0 start", got)
	}

	// A second start on the same device is rejected.
	if err := m.StartRecipe(ctx, "oven-1", "roast"); !errors.Is(err, ErrRecipeActive) {
		t.Errorf("second StartRecipe() error = %v, want ErrRecipeActive", err)
	}

	if err := m.CancelRecipe(ctx, "oven-1"); err != nil {
		t.Fatalf("CancelRecipe() error = %v", err)
	}
	exec, _ = m.RecipeExecution("oven-1")
	if exec.State != StateCancelled {
		t.Errorf("state after cancel = %v", exec.State)
	}
}

func TestManager_StartRecipe_UnknownKey(t *testing.T) {
	m := newTestManager(t, &fakeSender{})

	err := m.StartRecipe(context.Background(), "oven-1", "missing")
	if !errors.Is(err, recipe.ErrNotFound) {
		t.Errorf("StartRecipe() error = %v, want recipe.ErrNotFound", err)
	}
}

// fakeHistory records RecordChange calls in memory.
type fakeHistory struct {
	mu      sync.Mutex
	sources []string
	entries []oven.HistoryEntry
}

func (f *fakeHistory) RecordChange(_ context.Context, deviceID string, _ oven.Snapshot, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
	return nil
}

func (f *fakeHistory) GetHistory(context.Context, string, int) ([]oven.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, nil
}

func (f *fakeHistory) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

func TestManager_HistorySources(t *testing.T) {
	history := &fakeHistory{}
	m := NewManager(ManagerConfig{
		Command:      config.CommandConfig{AckTimeout: 5, QueueSize: 4},
		OfflineGrace: time.Minute,
		Sender:       &fakeSender{},
		Library:      testLibrary(t),
		History:      history,
	})
	t.Cleanup(m.Close)
	m.HandleFrame(deviceListFrame(t, cloud.DeviceInfo{CookerID: "oven-1", Type: "oven_v2"}))
	ctx := context.Background()

	m.HandleFrame(stateFrame(t, "oven-1", `{"nodes": {"lamp": {"on": true}}}`))
	if err := m.SetLamp(ctx, "oven-1", false); err != nil {
		t.Fatalf("SetLamp() error = %v", err)
	}
	if err := m.StartRecipe(ctx, "oven-1", "roast"); err != nil {
		t.Fatalf("StartRecipe() error = %v", err)
	}

	got := map[string]bool{}
	for _, source := range history.recorded() {
		got[source] = true
	}
	for _, want := range []string{oven.HistorySourcePush, oven.HistorySourceCommand, oven.HistorySourceRecipe} {
		if !got[want] {
			t.Errorf("no history entry with source %q, recorded %v", want, history.recorded())
		}
	}
}

func TestManager_History(t *testing.T) {
	history := &fakeHistory{entries: []oven.HistoryEntry{
		{ID: 2, DeviceID: "oven-1", Source: oven.HistorySourceCommand},
		{ID: 1, DeviceID: "oven-1", Source: oven.HistorySourcePush},
	}}
	m := NewManager(ManagerConfig{
		Command:      config.CommandConfig{AckTimeout: 5, QueueSize: 4},
		OfflineGrace: time.Minute,
		Sender:       &fakeSender{},
		History:      history,
	})
	t.Cleanup(m.Close)
	m.HandleFrame(deviceListFrame(t, cloud.DeviceInfo{CookerID: "oven-1", Type: "oven_v2"}))
	ctx := context.Background()

	entries, err := m.History(ctx, "oven-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != 2 {
		t.Errorf("History() = %+v, want 2 entries newest first", entries)
	}

	if _, err := m.History(ctx, "oven-9", 10); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("History(unknown) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestManager_History_NotConfigured(t *testing.T) {
	m := newTestManager(t, &fakeSender{})

	_, err := m.History(context.Background(), "oven-1", 10)
	if !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("History() error = %v, want ErrHistoryDisabled", err)
	}
}

func TestManager_CookEventCallback(t *testing.T) {
	sender := &fakeSender{}
	events := make(chan Execution, 8)

	m := NewManager(ManagerConfig{
		Command:      config.CommandConfig{AckTimeout: 5, QueueSize: 4},
		OfflineGrace: time.Minute,
		Sender:       sender,
		Library:      testLibrary(t),
	})
	t.Cleanup(m.Close)
	m.SetOnCookEvent(func(exec Execution) { events <- exec })

	m.HandleFrame(deviceListFrame(t, cloud.DeviceInfo{CookerID: "oven-1", Type: "oven_v2"}))

	if err := m.StartRecipe(context.Background(), "oven-1", "roast"); err != nil {
		t.Fatalf("StartRecipe() error = %v", err)
	}

	select {
	case exec := <-events:
		if exec.State != StateRunning {
			t.Errorf("first event state = %v, want running", exec.State)
		}
	case <-time.After(time.Second):
		t.Fatal("cook event not delivered")
	}
}
