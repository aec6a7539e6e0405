package validator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Draws int `mapstructure:"draws" validate:"min=1"`
}

type outer struct {
	Name    string  `json:"name" validate:"required"`
	Scale   float64 `yaml:"scale" validate:"finite,gt=0"`
	Sampler inner   `mapstructure:"sampler"`
}

func TestValidate_ReportsExternalFieldNames(t *testing.T) {
	err := Validate(outer{Scale: math.Inf(1), Sampler: inner{Draws: 0}})
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	errs := err.(ValidationErrors)
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Message
	}

	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must be a finite number", fields["scale"])
	assert.Equal(t, "must be at least 1", fields["sampler.draws"])
	assert.Contains(t, err.Error(), "sampler.draws: must be at least 1")
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(outer{Name: "ok", Scale: 1, Sampler: inner{Draws: 10}}))
}
