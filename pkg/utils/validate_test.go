package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleInput struct {
	Name   string `json:"name" validate:"required,min=3"`
	Status string `json:"status" validate:"omitempty,oneof=verified rejected"`
	Limit  int    `json:"limit" validate:"gte=0"`
}

func TestFormatValidationError_UsesJSONNames(t *testing.T) {
	v := NewValidator()

	err := v.Struct(sampleInput{Name: "ab", Status: "lost", Limit: -1})
	require.Error(t, err)

	errs := FormatValidationError(err)
	require.Equal(t, "name must be at least 3", errs["name"])
	require.Equal(t, "status must be one of [verified rejected]", errs["status"])
	require.Equal(t, "limit must be greater than or equal to 0", errs["limit"])
}

func TestFormatValidationError_PlainError(t *testing.T) {
	errs := FormatValidationError(errors.New("broken json"))
	require.Equal(t, "broken json", errs["body"])
}
