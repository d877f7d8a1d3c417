package recipe

import (
	"fmt"
	"strings"

	"github.com/ovenlink/ovenlink-core/internal/oven"
)

// Compile validates a raw definition and produces an immutable Recipe.
//
// Compilation is pure: it touches no device and no shared state, and
// the same inputs always yield a structurally equal Recipe. All
// temperatures in the result are Celsius regardless of the unit the
// definition was written in.
//
// Parameters:
//   - key: Library lookup key for the recipe
//   - def: Parsed definition to validate
//   - version: Oven hardware version, gates temperature range limits
//
// Returns:
//   - *Recipe: Compiled recipe, nil when validation fails
//   - error: ErrInvalidDefinition (wrapped) describing the first problem
func Compile(key string, def Definition, version oven.Version) (*Recipe, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: recipe key is required", ErrInvalidDefinition)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("%w: recipe %q has no name", ErrInvalidDefinition, key)
	}
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("%w: recipe %q has no stages", ErrInvalidDefinition, key)
	}

	stages := make([]oven.Stage, 0, len(def.Stages))
	for i, raw := range def.Stages {
		stage, err := compileStage(raw, version)
		if err != nil {
			return nil, fmt.Errorf("%w: recipe %q stage %d: %v", ErrInvalidDefinition, key, i, err)
		}
		stages = append(stages, stage)
	}

	return &Recipe{
		Key:         key,
		Name:        def.Name,
		Description: def.Description,
		Stages:      stages,
	}, nil
}

// compileStage converts one raw stage to a validated oven stage.
func compileStage(raw StageDefinition, version oven.Version) (oven.Stage, error) {
	if raw.Temperature.Value == nil {
		return oven.Stage{}, fmt.Errorf("temperature value is required")
	}

	unit, err := parseUnit(raw.Temperature.Unit)
	if err != nil {
		return oven.Stage{}, err
	}

	mode, err := parseMode(raw.Temperature.Mode)
	if err != nil {
		return oven.Stage{}, err
	}

	target := *raw.Temperature.Value
	if unit == oven.UnitFahrenheit {
		target = oven.FahrenheitToCelsius(target)
	}

	stage := oven.Stage{
		Title:         raw.Name,
		Mode:          mode,
		TargetCelsius: target,
		FanSpeed:      raw.FanSpeed,
		RackPosition:  raw.RackPosition,
		HeatingElements: oven.HeatingElements{
			Top:    raw.HeatingElements.Top,
			Bottom: raw.HeatingElements.Bottom,
			Rear:   raw.HeatingElements.Rear,
		},
	}

	if raw.Timer != nil {
		if raw.Timer.Seconds < 0 {
			return oven.Stage{}, fmt.Errorf("timer seconds must not be negative, got %d", raw.Timer.Seconds)
		}
		stage.TimerSeconds = raw.Timer.Seconds
	}

	if raw.Steam != nil {
		steam := *raw.Steam
		stage.SteamPercent = &steam
	}

	if raw.ProbeTarget != nil {
		probe := *raw.ProbeTarget
		if unit == oven.UnitFahrenheit {
			probe = oven.FahrenheitToCelsius(probe)
		}
		stage.ProbeTargetCelsius = &probe
	}

	if err := stage.Validate(version); err != nil {
		return oven.Stage{}, err
	}

	return stage, nil
}

// parseUnit accepts the wire unit letters plus their spelled-out forms.
func parseUnit(raw string) (oven.TemperatureUnit, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "C", "CELSIUS":
		return oven.UnitCelsius, nil
	case "F", "FAHRENHEIT":
		return oven.UnitFahrenheit, nil
	default:
		return "", fmt.Errorf("unrecognised temperature unit %q", raw)
	}
}

func parseMode(raw string) (oven.TemperatureMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dry":
		return oven.ModeDry, nil
	case "wet":
		return oven.ModeWet, nil
	default:
		return "", fmt.Errorf("unrecognised heating mode %q", raw)
	}
}
