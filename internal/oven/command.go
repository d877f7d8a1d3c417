package oven

import (
	"fmt"

	"github.com/google/uuid"
)

// CommandType is the wire name of a device command.
type CommandType string

// Commands accepted by the cloud for an oven.
const (
	CommandStartCook          CommandType = "CMD_APO_START"
	CommandStopCook           CommandType = "CMD_APO_STOP"
	CommandSetProbe           CommandType = "CMD_APO_SET_PROBE"
	CommandSetTemperatureUnit CommandType = "CMD_APO_SET_TEMPERATURE_UNIT"
	CommandSetLamp            CommandType = "CMD_APO_SET_LAMP"
)

// Command is one validated instruction for an oven. Only the fields
// relevant to the Type are consulted.
type Command struct {
	Type CommandType

	// Stages holds the cook program for CommandStartCook.
	Stages []Stage

	// ProbeTargetCelsius is the food probe setpoint for CommandSetProbe.
	ProbeTargetCelsius float64

	// Unit is the display unit for CommandSetTemperatureUnit.
	Unit TemperatureUnit

	// LampOn is the lamp state for CommandSetLamp.
	LampOn bool
}

// Validate checks the command against the device's current snapshot.
// Validation failures wrap ErrValidation.
func (c Command) Validate(snap Snapshot) error {
	switch c.Type {
	case CommandStartCook:
		if len(c.Stages) == 0 {
			return fmt.Errorf("%w: cook requires at least one stage", ErrValidation)
		}
		for i, stage := range c.Stages {
			if err := stage.Validate(snap.Version); err != nil {
				return fmt.Errorf("stage %d: %w", i, err)
			}
			if stage.ProbeTargetCelsius != nil && !snap.ProbeConnected {
				return fmt.Errorf("%w: stage %d targets the probe but no probe is connected", ErrValidation, i)
			}
		}
		return nil

	case CommandStopCook:
		return nil

	case CommandSetProbe:
		if !snap.ProbeConnected {
			return fmt.Errorf("%w: no probe connected", ErrValidation)
		}
		return ValidateProbeTemperature(c.ProbeTargetCelsius)

	case CommandSetTemperatureUnit:
		if !c.Unit.Valid() {
			return fmt.Errorf("%w: unknown temperature unit %q", ErrValidation, c.Unit)
		}
		return nil

	case CommandSetLamp:
		return nil

	default:
		return fmt.Errorf("%w: unknown command type %q", ErrValidation, c.Type)
	}
}

// WirePayload builds the cloud payload body for this command. The session
// layer adds the envelope (command name, request ID).
func (c Command) WirePayload(deviceID string) map[string]any {
	switch c.Type {
	case CommandStartCook:
		stages := make([]map[string]any, len(c.Stages))
		for i, stage := range c.Stages {
			stages[i] = encodeStage(stage, i)
		}
		return map[string]any{
			"id": deviceID,
			"cook": map[string]any{
				"stages": stages,
			},
		}

	case CommandStopCook:
		return map[string]any{"id": deviceID}

	case CommandSetProbe:
		return map[string]any{
			"id": deviceID,
			"setpoint": map[string]any{
				"celsius":    c.ProbeTargetCelsius,
				"fahrenheit": CelsiusToFahrenheit(c.ProbeTargetCelsius),
			},
		}

	case CommandSetTemperatureUnit:
		return map[string]any{
			"id":              deviceID,
			"temperatureUnit": string(c.Unit),
		}

	case CommandSetLamp:
		return map[string]any{
			"id": deviceID,
			"on": c.LampOn,
		}

	default:
		return map[string]any{"id": deviceID}
	}
}

// encodeStage converts a validated Stage to the cloud's stage object.
// Stage IDs are fresh UUIDs; the device echoes them back in push frames.
func encodeStage(s Stage, index int) map[string]any {
	bulbs := map[string]any{
		"mode": string(s.Mode),
	}
	setpoint := map[string]any{
		"celsius":    s.TargetCelsius,
		"fahrenheit": CelsiusToFahrenheit(s.TargetCelsius),
	}
	if s.Mode == ModeWet {
		bulbs["wet"] = map[string]any{"setpoint": setpoint}
	} else {
		bulbs["dry"] = map[string]any{"setpoint": setpoint}
	}

	stage := map[string]any{
		"id":                 uuid.NewString(),
		"index":              index,
		"title":              s.Title,
		"type":               "cook",
		"userActionRequired": false,
		"temperatureBulbs":   bulbs,
		"heatingElements": map[string]any{
			"top":    map[string]any{"on": s.HeatingElements.Top},
			"bottom": map[string]any{"on": s.HeatingElements.Bottom},
			"rear":   map[string]any{"on": s.HeatingElements.Rear},
		},
		"fan":  map[string]any{"speed": s.FanSpeed},
		"vent": map[string]any{"open": false},
	}

	if s.RackPosition != 0 {
		stage["rackPosition"] = s.RackPosition
	}

	if s.SteamPercent != nil {
		stage["steamGenerators"] = map[string]any{
			"mode": "steam-percentage",
			"steamPercentage": map[string]any{
				"setpoint": *s.SteamPercent,
			},
		}
	}

	stage["timerAdded"] = s.TimerSeconds > 0
	if s.TimerSeconds > 0 {
		stage["timer"] = map[string]any{"initial": s.TimerSeconds}
	}

	stage["probeAdded"] = s.ProbeTargetCelsius != nil
	if s.ProbeTargetCelsius != nil {
		stage["probe"] = map[string]any{
			"setpoint": map[string]any{
				"celsius":    *s.ProbeTargetCelsius,
				"fahrenheit": CelsiusToFahrenheit(*s.ProbeTargetCelsius),
			},
		}
	}

	return stage
}
