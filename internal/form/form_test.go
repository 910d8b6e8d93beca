package form

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	e := Errors{}
	assert.NoError(t, e.Err())

	e.Add("quantity", "must be a number")
	e.Add("quantity", "ignored")
	e.Add("date", "required")

	err := e.Err()
	assert.EqualError(t, err, "validation failed: date: required; quantity: must be a number")
	assert.True(t, IsValidation(fmt.Errorf("saving: %w", err)))
	assert.False(t, IsValidation(fmt.Errorf("boom")))
}

func TestInvalid(t *testing.T) {
	assert.True(t, IsValidation(Invalid("username", "required")))
}
