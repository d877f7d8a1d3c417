package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ovenlink/ovenlink-core/internal/cloud"
	"github.com/ovenlink/ovenlink-core/internal/cook"
	"github.com/ovenlink/ovenlink-core/internal/infrastructure/mqtt"
	"github.com/ovenlink/ovenlink-core/internal/oven"
)

// commandTimeout bounds each MQTT-initiated command.
const commandTimeout = 30 * time.Second

// Service is the slice of the cook manager the bridge drives.
type Service interface {
	StartCook(ctx context.Context, deviceID string, stages []oven.Stage) error
	StopCook(ctx context.Context, deviceID string) error
	SetProbe(ctx context.Context, deviceID string, targetCelsius float64) error
	SetTemperatureUnit(ctx context.Context, deviceID string, unit oven.TemperatureUnit) error
	SetLamp(ctx context.Context, deviceID string, on bool) error
	StartRecipe(ctx context.Context, deviceID, recipeKey string) error
	CancelRecipe(ctx context.Context, deviceID string) error
	History(ctx context.Context, deviceID string, limit int) ([]oven.HistoryEntry, error)
}

// Publisher is the slice of the MQTT client the bridge publishes with.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface for the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// commandPayload is the JSON body accepted on device command topics.
type commandPayload struct {
	Action        string       `json:"action"`
	Stages        []oven.Stage `json:"stages,omitempty"`
	TargetCelsius float64      `json:"target_celsius,omitempty"`
	Unit          string       `json:"unit,omitempty"`
	On            bool         `json:"on,omitempty"`
	Recipe        string       `json:"recipe,omitempty"`
	Limit         int          `json:"limit,omitempty"`
}

// resultPayload is published to the device result topic per command.
type resultPayload struct {
	Action  string              `json:"action"`
	Status  string              `json:"status"`
	Error   string              `json:"error,omitempty"`
	History []oven.HistoryEntry `json:"history,omitempty"`
}

// Bridge connects the oven runtime to an MQTT broker.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Bridge struct {
	client  Publisher
	service Service
	qos     byte
	logger  Logger
	topics  mqtt.Topics

	mu      sync.Mutex
	watched map[string]*oven.Subscription
}

// New creates a bridge over an MQTT client and the cook service.
func New(client Publisher, service Service, qos byte) *Bridge {
	return &Bridge{
		client:  client,
		service: service,
		qos:     qos,
		logger:  noopLogger{},
		watched: make(map[string]*oven.Subscription),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the command topic tree. State publishing begins
// per device via AttachDevice.
func (b *Bridge) Start() error {
	if err := b.client.Subscribe(b.topics.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to command topics: %w", err)
	}
	return nil
}

// AttachDevice begins publishing a device's state changes and
// advertises it as available. The subscription is consumed until
// DetachDevice or Close.
func (b *Bridge) AttachDevice(info cloud.DeviceInfo, sub *oven.Subscription) {
	b.mu.Lock()
	if old, ok := b.watched[info.CookerID]; ok {
		old.Close()
	}
	b.watched[info.CookerID] = sub
	b.mu.Unlock()

	b.publishJSON(b.topics.DeviceInfo(info.CookerID), info, true)
	b.publishRaw(b.topics.DeviceAvailability(info.CookerID), []byte("online"), true)

	go b.pump(sub)
}

// DetachDevice stops publishing for a device and marks it unavailable.
func (b *Bridge) DetachDevice(deviceID string) {
	b.mu.Lock()
	sub, ok := b.watched[deviceID]
	delete(b.watched, deviceID)
	b.mu.Unlock()

	if ok {
		sub.Close()
	}
	b.publishRaw(b.topics.DeviceAvailability(deviceID), []byte("offline"), true)
}

// PublishCookEvent publishes a recipe execution transition.
func (b *Bridge) PublishCookEvent(exec cook.Execution) {
	b.publishJSON(b.topics.CookEvent(exec.DeviceID), exec, false)
}

// Close detaches every device.
func (b *Bridge) Close() {
	b.mu.Lock()
	watched := b.watched
	b.watched = make(map[string]*oven.Subscription)
	b.mu.Unlock()

	for id, sub := range watched {
		sub.Close()
		b.publishRaw(b.topics.DeviceAvailability(id), []byte("offline"), true)
	}
}

// pump publishes a device's change stream until the subscription closes.
func (b *Bridge) pump(sub *oven.Subscription) {
	for cs := range sub.Updates() {
		b.publishJSON(b.topics.DeviceState(cs.DeviceID), cs, true)
	}
}

// handleCommand decodes and executes one inbound command message.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID := deviceIDFromTopic(topic)
	if deviceID == "" {
		b.logger.Warn("command on unroutable topic", "topic", topic)
		return nil
	}

	var cmd commandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("undecodable command payload",
			"device_id", deviceID,
			"error", err,
		)
		b.publishResult(deviceID, resultPayload{
			Action: "unknown",
			Status: "error",
			Error:  "undecodable payload",
		})
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result := resultPayload{Action: cmd.Action, Status: "ok"}
	err := b.dispatch(ctx, deviceID, cmd, &result)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		b.logger.Warn("command failed",
			"device_id", deviceID,
			"action", cmd.Action,
			"error", err,
		)
	}
	b.publishResult(deviceID, result)
	return nil
}

// dispatch routes one decoded command to the service. Query actions
// attach their answer to the result.
func (b *Bridge) dispatch(ctx context.Context, deviceID string, cmd commandPayload, result *resultPayload) error {
	switch cmd.Action {
	case "start_cook":
		return b.service.StartCook(ctx, deviceID, cmd.Stages)
	case "stop_cook":
		return b.service.StopCook(ctx, deviceID)
	case "set_probe":
		return b.service.SetProbe(ctx, deviceID, cmd.TargetCelsius)
	case "set_temperature_unit":
		return b.service.SetTemperatureUnit(ctx, deviceID, oven.TemperatureUnit(cmd.Unit))
	case "set_lamp":
		return b.service.SetLamp(ctx, deviceID, cmd.On)
	case "start_recipe":
		return b.service.StartRecipe(ctx, deviceID, cmd.Recipe)
	case "cancel_recipe":
		return b.service.CancelRecipe(ctx, deviceID)
	case "get_history":
		entries, err := b.service.History(ctx, deviceID, cmd.Limit)
		if err != nil {
			return err
		}
		result.History = entries
		return nil
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

// publishResult reports a command outcome on the device result topic.
func (b *Bridge) publishResult(deviceID string, result resultPayload) {
	b.publishJSON(b.topics.DeviceResult(deviceID), result, false)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("marshalling publish payload", "topic", topic, "error", err)
		return
	}
	b.publishRaw(topic, data, retained)
}

func (b *Bridge) publishRaw(topic string, payload []byte, retained bool) {
	if err := b.client.Publish(topic, payload, b.qos, retained); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// deviceIDFromTopic extracts the device id from a command topic
// (ovenlink/command/{device_id}).
func deviceIDFromTopic(topic string) string {
	prefix := mqtt.TopicPrefix + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	id := topic[len(prefix):]
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return ""
		}
	}
	return id
}
