package repository

import "errors"

var ErrProductNotFound = errors.New("product not found")
var ErrMenuNotFound = errors.New("menu not found")

// ErrVersionConflict means a row changed between read and conditional write.
var ErrVersionConflict = errors.New("version conflict")
