package recipe

import "errors"

var (
	// ErrInvalidDefinition indicates a recipe definition that failed
	// compile-time validation. Nothing is produced in that case.
	ErrInvalidDefinition = errors.New("recipe: invalid definition")

	// ErrNotFound indicates the requested recipe key is not in the library.
	ErrNotFound = errors.New("recipe: recipe not found")
)
