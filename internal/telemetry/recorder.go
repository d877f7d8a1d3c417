package telemetry

import (
	"sync"

	"github.com/ovenlink/ovenlink-core/internal/cook"
	"github.com/ovenlink/ovenlink-core/internal/oven"
)

// Writer is the slice of the time-series client the recorder writes with.
type Writer interface {
	WriteOvenMetric(deviceID string, measurement string, value float64)
	WriteOvenFlag(deviceID string, flag string, value bool)
	WriteCookEvent(deviceID, executionID, event string, stageIndex int)
}

// Logger defines the logging interface for the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder writes oven telemetry for every attached device.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Recorder struct {
	writer Writer
	logger Logger

	mu      sync.Mutex
	watched map[string]*oven.Subscription
}

// NewRecorder creates a recorder over a time-series writer.
func NewRecorder(writer Writer) *Recorder {
	return &Recorder{
		writer:  writer,
		logger:  noopLogger{},
		watched: make(map[string]*oven.Subscription),
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// AttachDevice starts recording a device's state changes. The
// subscription is consumed until DetachDevice or Close.
func (r *Recorder) AttachDevice(deviceID string, sub *oven.Subscription) {
	r.mu.Lock()
	if old, ok := r.watched[deviceID]; ok {
		old.Close()
	}
	r.watched[deviceID] = sub
	r.mu.Unlock()

	go r.pump(sub)
}

// DetachDevice stops recording for a device.
func (r *Recorder) DetachDevice(deviceID string) {
	r.mu.Lock()
	sub, ok := r.watched[deviceID]
	delete(r.watched, deviceID)
	r.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// RecordCookEvent writes one recipe execution transition.
func (r *Recorder) RecordCookEvent(exec cook.Execution) {
	r.writer.WriteCookEvent(exec.DeviceID, exec.ID, string(exec.State), exec.StageIndex)
}

// Close detaches every device.
func (r *Recorder) Close() {
	r.mu.Lock()
	watched := r.watched
	r.watched = make(map[string]*oven.Subscription)
	r.mu.Unlock()

	for _, sub := range watched {
		sub.Close()
	}
}

// pump records a device's change stream until the subscription closes.
func (r *Recorder) pump(sub *oven.Subscription) {
	for cs := range sub.Updates() {
		r.record(cs)
	}
}

// record writes one point per changed field. Field names follow the
// snapshot JSON tags, so dashboards and the MQTT surface agree.
func (r *Recorder) record(cs *oven.ChangeSet) {
	snap := cs.Snapshot
	for _, field := range cs.Changed {
		switch field {
		case "current_celsius":
			r.writer.WriteOvenMetric(cs.DeviceID, field, snap.CurrentCelsius)
		case "target_celsius":
			r.writer.WriteOvenMetric(cs.DeviceID, field, snap.TargetCelsius)
		case "wet_current_celsius":
			r.writer.WriteOvenMetric(cs.DeviceID, field, snap.WetCurrentCelsius)
		case "bottom_heat_celsius":
			r.writer.WriteOvenMetric(cs.DeviceID, field, snap.BottomHeatCelsius)
		case "probe_celsius":
			r.writer.WriteOvenMetric(cs.DeviceID, field, snap.ProbeCelsius)
		case "probe_target_celsius":
			if snap.ProbeTargetCelsius != nil {
				r.writer.WriteOvenMetric(cs.DeviceID, field, *snap.ProbeTargetCelsius)
			}
		case "fan_speed":
			r.writer.WriteOvenMetric(cs.DeviceID, field, float64(snap.FanSpeed))
		case "steam_percent":
			r.writer.WriteOvenMetric(cs.DeviceID, field, float64(snap.SteamPercent))
		case "relative_humidity":
			r.writer.WriteOvenMetric(cs.DeviceID, field, float64(snap.RelativeHumidity))
		case "timer_remaining":
			r.writer.WriteOvenMetric(cs.DeviceID, field, float64(snap.TimerRemaining))
		case "door_open":
			r.writer.WriteOvenFlag(cs.DeviceID, field, snap.DoorOpen)
		case "water_low":
			r.writer.WriteOvenFlag(cs.DeviceID, field, snap.WaterLow)
		case "vent_open":
			r.writer.WriteOvenFlag(cs.DeviceID, field, snap.VentOpen)
		case "lamp_on":
			r.writer.WriteOvenFlag(cs.DeviceID, field, snap.LampOn)
		case "probe_connected":
			r.writer.WriteOvenFlag(cs.DeviceID, field, snap.ProbeConnected)
		}
	}
}
