package store

import "errors"

// ErrNotFound is returned when no product has the requested ID.
var ErrNotFound = errors.New("product not found")

// ErrInvalidInput is returned when an import contains an invalid product.
var ErrInvalidInput = errors.New("invalid product")
