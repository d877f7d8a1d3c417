package recipe

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ovenlink/ovenlink-core/internal/oven"
)

// Library holds the recipe definitions loaded from configuration and
// compiles them on demand for a specific oven version.
//
// Definitions are immutable after load. Compilation happens per Get
// because temperature limits differ between oven hardware versions.
//
// Thread Safety:
//   - Safe for concurrent reads after LoadLibrary returns.
type Library struct {
	defs map[string]Definition
}

// libraryFile is the on-disk YAML layout: recipe key to definition.
type libraryFile struct {
	Recipes map[string]Definition `yaml:"recipes"`
}

// LoadLibrary reads and parses a recipe library file.
//
// Every definition is compiled once at load against the strictest
// hardware limits, so a broken recipe fails at startup rather than at
// cook time.
//
// Parameters:
//   - path: Path to the YAML recipe file
//
// Returns:
//   - *Library: Loaded library ready for lookups
//   - error: File, parse, or validation error
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe file: %w", err)
	}

	return ParseLibrary(data)
}

// ParseLibrary builds a library from raw YAML bytes.
func ParseLibrary(data []byte) (*Library, error) {
	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing recipe file: %w", err)
	}
	if len(file.Recipes) == 0 {
		return nil, fmt.Errorf("%w: recipe file defines no recipes", ErrInvalidDefinition)
	}

	for key, def := range file.Recipes {
		if _, err := Compile(key, def, oven.VersionV1); err != nil {
			return nil, err
		}
	}

	return &Library{defs: file.Recipes}, nil
}

// Get compiles the named recipe for the given oven version.
//
// Returns:
//   - *Recipe: Compiled recipe
//   - error: ErrNotFound for an unknown key, ErrInvalidDefinition when
//     the definition does not fit the given hardware version
func (l *Library) Get(key string, version oven.Version) (*Recipe, error) {
	def, ok := l.defs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return Compile(key, def, version)
}

// Info summarises one library entry without compiling it.
type Info struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Stages      int    `json:"stages"`
}

// List returns metadata for every recipe, sorted by key.
func (l *Library) List() []Info {
	infos := make([]Info, 0, len(l.defs))
	for _, key := range l.Keys() {
		def := l.defs[key]
		infos = append(infos, Info{
			Key:         key,
			Name:        def.Name,
			Description: def.Description,
			Stages:      len(def.Stages),
		})
	}
	return infos
}

// Keys returns the sorted recipe keys in the library.
func (l *Library) Keys() []string {
	keys := make([]string, 0, len(l.defs))
	for key := range l.defs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of recipes in the library.
func (l *Library) Len() int {
	return len(l.defs)
}
