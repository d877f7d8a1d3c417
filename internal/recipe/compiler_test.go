package recipe

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ovenlink/ovenlink-core/internal/oven"
)

func float(v float64) *float64 { return &v }

func validDefinition() Definition {
	return Definition{
		Name:        "Roast Chicken",
		Description: "Crispy skin, juicy inside.",
		Stages: []StageDefinition{
			{
				Name:            "sear",
				Temperature:     TemperatureDefinition{Value: float(230), Unit: "C", Mode: "dry"},
				Timer:           &TimerDefinition{Seconds: 900},
				FanSpeed:        100,
				HeatingElements: ElementsDefinition{Rear: true},
				RackPosition:    3,
			},
			{
				Name:            "finish",
				Temperature:     TemperatureDefinition{Value: float(180), Unit: "C", Mode: "dry"},
				Timer:           &TimerDefinition{Seconds: 1800},
				FanSpeed:        60,
				HeatingElements: ElementsDefinition{Rear: true},
				RackPosition:    3,
			},
		},
	}
}

func TestCompile(t *testing.T) {
	recipe, err := Compile("roast-chicken", validDefinition(), oven.VersionV2)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if recipe.Key != "roast-chicken" || recipe.Name != "Roast Chicken" {
		t.Errorf("identity = %q/%q", recipe.Key, recipe.Name)
	}
	if len(recipe.Stages) != 2 {
		t.Fatalf("compiled %d stages, want 2", len(recipe.Stages))
	}

	first := recipe.Stages[0]
	if first.Title != "sear" || first.TargetCelsius != 230 || first.TimerSeconds != 900 {
		t.Errorf("stage 0 = %+v", first)
	}
	if !first.HeatingElements.Rear || first.HeatingElements.Top {
		t.Errorf("stage 0 elements = %+v, want rear only", first.HeatingElements)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	def := validDefinition()

	first, err := Compile("roast-chicken", def, oven.VersionV2)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	second, err := Compile("roast-chicken", def, oven.VersionV2)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("compiling the same definition twice produced different recipes")
	}
}

func TestCompile_FahrenheitConversion(t *testing.T) {
	def := validDefinition()
	def.Stages = def.Stages[:1]
	def.Stages[0].Temperature = TemperatureDefinition{Value: float(392), Unit: "F", Mode: "dry"}
	def.Stages[0].ProbeTarget = float(145.4)

	recipe, err := Compile("converted", def, oven.VersionV2)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if got := recipe.Stages[0].TargetCelsius; got != 200 {
		t.Errorf("TargetCelsius = %v, want 200", got)
	}
	probe := recipe.Stages[0].ProbeTargetCelsius
	if probe == nil || *probe < 62.9 || *probe > 63.1 {
		t.Errorf("ProbeTargetCelsius = %v, want ~63", probe)
	}
}

func TestCompile_SpelledOutUnits(t *testing.T) {
	def := validDefinition()
	def.Stages[0].Temperature.Unit = "celsius"
	def.Stages[1].Temperature.Unit = "Fahrenheit"
	def.Stages[1].Temperature.Value = float(356)

	recipe, err := Compile("units", def, oven.VersionV2)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if recipe.Stages[1].TargetCelsius != 180 {
		t.Errorf("TargetCelsius = %v, want 180", recipe.Stages[1].TargetCelsius)
	}
}

func TestCompile_ValidationErrors(t *testing.T) {
	steam := 40

	tests := []struct {
		name   string
		key    string
		mutate func(*Definition)
	}{
		{name: "empty key", key: "", mutate: func(d *Definition) {}},
		{name: "no name", key: "x", mutate: func(d *Definition) { d.Name = "" }},
		{name: "no stages", key: "x", mutate: func(d *Definition) { d.Stages = nil }},
		{
			name: "missing temperature",
			key:  "x",
			mutate: func(d *Definition) {
				d.Stages[0].Temperature.Value = nil
			},
		},
		{
			name: "unknown unit",
			key:  "x",
			mutate: func(d *Definition) {
				d.Stages[0].Temperature.Unit = "kelvin"
			},
		},
		{
			name: "unknown mode",
			key:  "x",
			mutate: func(d *Definition) {
				d.Stages[0].Temperature.Mode = "broil"
			},
		},
		{
			name: "negative timer",
			key:  "x",
			mutate: func(d *Definition) {
				d.Stages[0].Timer = &TimerDefinition{Seconds: -1}
			},
		},
		{
			name: "no heating elements",
			key:  "x",
			mutate: func(d *Definition) {
				d.Stages[0].HeatingElements = ElementsDefinition{}
			},
		},
		{
			name: "rack out of range",
			key:  "x",
			mutate: func(d *Definition) {
				d.Stages[0].RackPosition = 9
			},
		},
		{
			name: "steam with wet mode",
			key:  "x",
			mutate: func(d *Definition) {
				d.Stages[0].Temperature = TemperatureDefinition{Value: float(85), Unit: "C", Mode: "wet"}
				d.Stages[0].Steam = &steam
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)

			recipe, err := Compile(tt.key, def, oven.VersionV2)
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("Compile() error = %v, want ErrInvalidDefinition", err)
			}
			if recipe != nil {
				t.Error("Compile() produced a recipe despite validation failure")
			}
		})
	}
}

func TestCompile_VersionGatesBottomOnlyTemperature(t *testing.T) {
	def := validDefinition()
	def.Stages = def.Stages[:1]
	def.Stages[0].Temperature.Value = float(200)
	def.Stages[0].HeatingElements = ElementsDefinition{Bottom: true}

	if _, err := Compile("bottom", def, oven.VersionV2); err != nil {
		t.Errorf("Compile(v2) error = %v, want success", err)
	}
	if _, err := Compile("bottom", def, oven.VersionV1); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Compile(v1) error = %v, want ErrInvalidDefinition", err)
	}
}
