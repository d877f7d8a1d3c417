package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ovenlink/ovenlink-core/internal/oven"
)

const libraryYAML = `recipes:
  roast-chicken:
    name: Roast Chicken
    description: Crispy skin, juicy inside.
    stages:
      - name: sear
        temperature:
          value: 230
          temperature_unit: C
          mode: dry
        timer:
          seconds: 900
        fan_speed: 100
        heating_elements:
          rear: true
        rack_position: 3
      - name: finish
        temperature:
          value: 356
          temperature_unit: F
          mode: dry
        timer:
          seconds: 1800
        fan_speed: 60
        heating_elements:
          rear: true
        rack_position: 3
  sous-vide-egg:
    name: Sous Vide Egg
    stages:
      - name: hold
        temperature:
          value: 63
          temperature_unit: C
          mode: wet
        timer:
          seconds: 3600
        fan_speed: 100
        heating_elements:
          rear: true
`

func TestParseLibrary(t *testing.T) {
	lib, err := ParseLibrary([]byte(libraryYAML))
	if err != nil {
		t.Fatalf("ParseLibrary() error = %v", err)
	}

	if lib.Len() != 2 {
		t.Errorf("Len() = %d, want 2", lib.Len())
	}
	want := []string{"roast-chicken", "sous-vide-egg"}
	if got := lib.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestLibrary_List(t *testing.T) {
	lib, err := ParseLibrary([]byte(libraryYAML))
	if err != nil {
		t.Fatalf("ParseLibrary() error = %v", err)
	}

	want := []Info{
		{Key: "roast-chicken", Name: "Roast Chicken", Description: "Crispy skin, juicy inside.", Stages: 2},
		{Key: "sous-vide-egg", Name: "Sous Vide Egg", Stages: 1},
	}
	if got := lib.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestLibrary_Get(t *testing.T) {
	lib, err := ParseLibrary([]byte(libraryYAML))
	if err != nil {
		t.Fatalf("ParseLibrary() error = %v", err)
	}

	recipe, err := lib.Get("roast-chicken", oven.VersionV2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(recipe.Stages) != 2 {
		t.Fatalf("recipe has %d stages, want 2", len(recipe.Stages))
	}
	// Fahrenheit stage is stored converted.
	if recipe.Stages[1].TargetCelsius != 180 {
		t.Errorf("stage 1 TargetCelsius = %v, want 180", recipe.Stages[1].TargetCelsius)
	}

	wet, err := lib.Get("sous-vide-egg", oven.VersionV1)
	if err != nil {
		t.Fatalf("Get(sous-vide-egg) error = %v", err)
	}
	if wet.Stages[0].Mode != oven.ModeWet {
		t.Errorf("Mode = %v, want wet", wet.Stages[0].Mode)
	}
}

func TestLibrary_Get_NotFound(t *testing.T) {
	lib, err := ParseLibrary([]byte(libraryYAML))
	if err != nil {
		t.Fatalf("ParseLibrary() error = %v", err)
	}

	_, err = lib.Get("missing", oven.VersionV2)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestParseLibrary_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "not yaml", yaml: "recipes: ["},
		{name: "empty", yaml: "recipes: {}"},
		{
			name: "broken recipe fails at load",
			yaml: `recipes:
  bad:
    name: Bad
    stages:
      - name: only
        temperature:
          temperature_unit: C
          mode: dry
        heating_elements:
          rear: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLibrary([]byte(tt.yaml)); err == nil {
				t.Error("ParseLibrary() expected error")
			}
		})
	}
}

func TestLoadLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.yaml")
	if err := os.WriteFile(path, []byte(libraryYAML), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	lib, err := LoadLibrary(path)
	if err != nil {
		t.Fatalf("LoadLibrary() error = %v", err)
	}
	if lib.Len() != 2 {
		t.Errorf("Len() = %d, want 2", lib.Len())
	}
}

func TestLoadLibrary_MissingFile(t *testing.T) {
	if _, err := LoadLibrary(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadLibrary() expected error for missing file")
	}
}
