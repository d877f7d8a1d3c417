package oven

import (
	"fmt"
	"time"
)

// TemperatureUnit is the display unit reported by and sent to the oven.
type TemperatureUnit string

// Supported temperature units.
const (
	UnitCelsius    TemperatureUnit = "C"
	UnitFahrenheit TemperatureUnit = "F"
)

// Valid reports whether the unit is one the oven accepts.
func (u TemperatureUnit) Valid() bool {
	return u == UnitCelsius || u == UnitFahrenheit
}

// TemperatureMode selects which bulb drives the cook.
type TemperatureMode string

// Supported temperature modes. Wet bulb regulates by steam-saturated
// temperature and is capped at 100 degrees Celsius.
const (
	ModeDry TemperatureMode = "dry"
	ModeWet TemperatureMode = "wet"
)

// Version identifies the oven hardware generation. The second generation
// raised the bottom-element-only temperature ceiling.
type Version string

// Known oven generations.
const (
	VersionV1 Version = "oven_v1"
	VersionV2 Version = "oven_v2"
)

// Temperature limits in degrees Celsius.
const (
	MinCookCelsius = 25.0
	MaxWetCelsius  = 100.0
	MaxDryCelsius  = 250.0

	// Bottom-element-only cooks are capped lower to protect the cavity.
	MaxBottomOnlyCelsiusV1 = 180.0
	MaxBottomOnlyCelsiusV2 = 230.0

	MinProbeCelsius = 1.0
	MaxProbeCelsius = 100.0
)

// Stage geometry limits.
const (
	MinFanSpeed = 0
	MaxFanSpeed = 100

	MinRackPosition = 1
	MaxRackPosition = 7

	MinSteamPercent = 0
	MaxSteamPercent = 100
)

// CelsiusToFahrenheit converts a temperature to degrees Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FahrenheitToCelsius converts a temperature to degrees Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// HeatingElements selects which elements are active during a stage.
type HeatingElements struct {
	Top    bool `json:"top" yaml:"top"`
	Bottom bool `json:"bottom" yaml:"bottom"`
	Rear   bool `json:"rear" yaml:"rear"`
}

// BottomOnly reports whether only the bottom element is active.
func (h HeatingElements) BottomOnly() bool {
	return h.Bottom && !h.Top && !h.Rear
}

// Validate checks the element combination. The oven requires at least one
// element on and rejects all three at once.
func (h HeatingElements) Validate() error {
	if !h.Top && !h.Bottom && !h.Rear {
		return fmt.Errorf("%w: at least one heating element must be on", ErrValidation)
	}
	if h.Top && h.Bottom && h.Rear {
		return fmt.Errorf("%w: all three heating elements cannot be on together", ErrValidation)
	}
	return nil
}

// MaxCookCelsius returns the ceiling for a cook temperature given the
// bulb mode, element selection, and oven generation.
func MaxCookCelsius(mode TemperatureMode, elements HeatingElements, version Version) float64 {
	if mode == ModeWet {
		return MaxWetCelsius
	}
	if elements.BottomOnly() {
		if version == VersionV2 {
			return MaxBottomOnlyCelsiusV2
		}
		return MaxBottomOnlyCelsiusV1
	}
	return MaxDryCelsius
}

// ValidateCookTemperature checks a cook setpoint in degrees Celsius against
// the mode, element, and generation limits.
func ValidateCookTemperature(celsius float64, mode TemperatureMode, elements HeatingElements, version Version) error {
	maxC := MaxCookCelsius(mode, elements, version)
	if celsius < MinCookCelsius || celsius > maxC {
		return fmt.Errorf("%w: temperature %.1fC out of range %.0f-%.0fC for %s mode",
			ErrValidation, celsius, MinCookCelsius, maxC, mode)
	}
	return nil
}

// ValidateProbeTemperature checks a probe target in degrees Celsius.
func ValidateProbeTemperature(celsius float64) error {
	if celsius < MinProbeCelsius || celsius > MaxProbeCelsius {
		return fmt.Errorf("%w: probe target %.1fC out of range %.0f-%.0fC",
			ErrValidation, celsius, MinProbeCelsius, MaxProbeCelsius)
	}
	return nil
}

// Stage is one fully validated step of a cook. All temperatures are stored
// in degrees Celsius regardless of the unit they were authored in.
type Stage struct {
	// Title is the human-readable stage name.
	Title string `json:"title"`

	// Mode selects the regulating bulb (dry or wet).
	Mode TemperatureMode `json:"mode"`

	// TargetCelsius is the cook setpoint.
	TargetCelsius float64 `json:"target_celsius"`

	// TimerSeconds is the stage duration. 0 means no timer: the stage
	// runs until the probe target is reached or the cook is stopped.
	TimerSeconds int `json:"timer_seconds"`

	// FanSpeed is the convection fan duty 0-100.
	FanSpeed int `json:"fan_speed"`

	// RackPosition is the suggested rack slot 1-7. 0 means unspecified.
	RackPosition int `json:"rack_position,omitempty"`

	// HeatingElements selects the active elements.
	HeatingElements HeatingElements `json:"heating_elements"`

	// SteamPercent is the steam generator setpoint 0-100. Nil disables steam.
	SteamPercent *int `json:"steam_percent,omitempty"`

	// ProbeTargetCelsius ends the stage when the food probe reaches this
	// temperature. Nil when the probe is not used.
	ProbeTargetCelsius *float64 `json:"probe_target_celsius,omitempty"`
}

// Validate checks every stage constraint for the given oven generation.
func (s Stage) Validate(version Version) error {
	if s.Mode != ModeDry && s.Mode != ModeWet {
		return fmt.Errorf("%w: unknown temperature mode %q", ErrValidation, s.Mode)
	}
	if err := s.HeatingElements.Validate(); err != nil {
		return err
	}
	if err := ValidateCookTemperature(s.TargetCelsius, s.Mode, s.HeatingElements, version); err != nil {
		return err
	}
	if s.TimerSeconds < 0 {
		return fmt.Errorf("%w: timer must not be negative", ErrValidation)
	}
	if s.FanSpeed < MinFanSpeed || s.FanSpeed > MaxFanSpeed {
		return fmt.Errorf("%w: fan speed %d out of range %d-%d", ErrValidation, s.FanSpeed, MinFanSpeed, MaxFanSpeed)
	}
	if s.RackPosition != 0 && (s.RackPosition < MinRackPosition || s.RackPosition > MaxRackPosition) {
		return fmt.Errorf("%w: rack position %d out of range %d-%d", ErrValidation, s.RackPosition, MinRackPosition, MaxRackPosition)
	}
	if s.SteamPercent != nil {
		if *s.SteamPercent < MinSteamPercent || *s.SteamPercent > MaxSteamPercent {
			return fmt.Errorf("%w: steam percent %d out of range %d-%d", ErrValidation, *s.SteamPercent, MinSteamPercent, MaxSteamPercent)
		}
		if s.Mode == ModeWet {
			return fmt.Errorf("%w: steam percent cannot be combined with wet bulb mode", ErrValidation)
		}
	}
	if s.ProbeTargetCelsius != nil {
		if err := ValidateProbeTemperature(*s.ProbeTargetCelsius); err != nil {
			return err
		}
	}
	return nil
}

// TimerMode mirrors the oven's reported timer state.
type TimerMode string

// Timer states reported by the device.
const (
	TimerIdle      TimerMode = "idle"
	TimerRunning   TimerMode = "running"
	TimerPaused    TimerMode = "paused"
	TimerCompleted TimerMode = "completed"
)

// Snapshot is the canonical merged state of one oven.
//
// Temperatures are in degrees Celsius; Unit only affects display on the
// device itself. A zero Snapshot means no state has been received yet.
type Snapshot struct {
	DeviceID string  `json:"device_id"`
	Version  Version `json:"version,omitempty"`

	// Mode is the top-level device mode (idle, cook, paused, ...).
	Mode string `json:"mode"`

	Unit TemperatureUnit `json:"unit"`

	TemperatureMode   TemperatureMode `json:"temperature_mode"`
	CurrentCelsius    float64         `json:"current_celsius"`
	TargetCelsius     float64         `json:"target_celsius"`
	WetCurrentCelsius float64         `json:"wet_current_celsius"`
	BottomHeatCelsius float64         `json:"bottom_heat_celsius,omitempty"`

	ProbeConnected     bool     `json:"probe_connected"`
	ProbeCelsius       float64  `json:"probe_celsius"`
	ProbeTargetCelsius *float64 `json:"probe_target_celsius,omitempty"`

	TimerMode      TimerMode `json:"timer_mode"`
	TimerInitial   int       `json:"timer_initial"`
	TimerRemaining int       `json:"timer_remaining"`

	SteamPercent     int `json:"steam_percent"`
	RelativeHumidity int `json:"relative_humidity"`
	FanSpeed         int `json:"fan_speed"`

	DoorOpen bool `json:"door_open"`
	WaterLow bool `json:"water_low"`
	VentOpen bool `json:"vent_open"`
	LampOn   bool `json:"lamp_on"`

	HeatingElements HeatingElements `json:"heating_elements"`

	// StageIndex and StageCount describe the device's own view of a
	// multi-stage cook. StageIndex is zero-based; both are zero when idle.
	StageIndex int `json:"stage_index"`
	StageCount int `json:"stage_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Cooking reports whether the device is actively running a cook.
func (s Snapshot) Cooking() bool {
	return s.Mode == "cook"
}

// Idle reports whether the device is idle.
func (s Snapshot) Idle() bool {
	return s.Mode == "" || s.Mode == "idle"
}
