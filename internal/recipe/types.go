package recipe

import "github.com/ovenlink/ovenlink-core/internal/oven"

// Definition is the raw, declarative form of a recipe as loaded from
// configuration. It carries no validation guarantees; Compile is the
// sole authority on whether a definition is usable.
type Definition struct {
	// Name is the human-readable recipe name.
	Name string `yaml:"name"`

	// Description is optional free text shown to users.
	Description string `yaml:"description"`

	// Stages is the ordered cook program. Order is significant.
	Stages []StageDefinition `yaml:"stages"`
}

// StageDefinition is one raw stage of a recipe definition.
type StageDefinition struct {
	// Name labels the stage (for example "sear" or "rest").
	Name string `yaml:"name"`

	// Temperature is the target temperature and heating mode. Required.
	Temperature TemperatureDefinition `yaml:"temperature"`

	// Timer optionally bounds the stage duration.
	Timer *TimerDefinition `yaml:"timer"`

	// FanSpeed is the convection fan speed in percent (0-100).
	FanSpeed int `yaml:"fan_speed"`

	// HeatingElements selects which elements heat during the stage.
	HeatingElements ElementsDefinition `yaml:"heating_elements"`

	// RackPosition is the recommended rack (1-7), 0 when unspecified.
	RackPosition int `yaml:"rack_position"`

	// Steam optionally sets steam injection in percent (0-100).
	// Only valid with dry mode.
	Steam *int `yaml:"steam"`

	// ProbeTarget optionally sets a food probe target. The unit follows
	// Temperature.Unit.
	ProbeTarget *float64 `yaml:"probe_target"`
}

// TemperatureDefinition is a stage's target temperature.
type TemperatureDefinition struct {
	// Value is the target in the given unit. Required.
	Value *float64 `yaml:"value"`

	// Unit is "C" or "F".
	Unit string `yaml:"temperature_unit"`

	// Mode is "dry" or "wet" (sous-vide style wet bulb regulation).
	Mode string `yaml:"mode"`
}

// TimerDefinition is a stage's optional duration.
type TimerDefinition struct {
	Seconds int `yaml:"seconds"`
}

// ElementsDefinition selects heating elements for a stage.
type ElementsDefinition struct {
	Top    bool `yaml:"top"`
	Bottom bool `yaml:"bottom"`
	Rear   bool `yaml:"rear"`
}

// Recipe is a compiled, validated cook program. Immutable once
// compiled; changing a definition requires a fresh compilation.
type Recipe struct {
	// Key is the library lookup key.
	Key string

	// Name is the human-readable recipe name.
	Name string

	// Description is optional free text.
	Description string

	// Stages is the validated, ordered stage sequence in Celsius.
	Stages []oven.Stage
}
