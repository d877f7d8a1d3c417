// Package recipe compiles declarative multi-stage cook definitions into
// validated oven stage programs.
//
// A recipe definition is plain parsed data (typically YAML): a key, a
// display name, and an ordered list of stages, each with a temperature,
// heating mode, element set and optional timer, steam and probe targets.
// The compiler is the sole validator of this structure; loaders only
// need to supply syntactically parsed key/value data.
//
// Compilation is pure and deterministic. The same definition always
// compiles to a structurally equal Recipe, and an invalid definition
// fails with a validation error without producing a partial Recipe.
// Temperatures given in Fahrenheit are converted to Celsius at compile
// time so the rest of the system works in a single unit.
package recipe
