// internal/catalog/errors.go
package catalog

import "errors"

var (
	ErrFoodNotFound    = errors.New("food not found")
	ErrInvalidFood     = errors.New("invalid food")
	ErrMalformedSource = errors.New("malformed catalog source")
	ErrDuplicateID     = errors.New("duplicate id in source")
)
