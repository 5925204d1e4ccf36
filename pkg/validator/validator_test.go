package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email string  `json:"email" validate:"required,email"`
	Fee   float64 `json:"consultation_fee" validate:"gte=0"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := New().Validate(sample{Email: "nope", Fee: -1})
	require.Error(t, err)

	var verrs Errors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
	assert.Equal(t, "email", verrs[0].Field)
	assert.Equal(t, "consultation_fee", verrs[1].Field)
	assert.Equal(t, "must not be negative", verrs[1].Message)
}

func TestValidatePasses(t *testing.T) {
	assert.NoError(t, New().Validate(sample{Email: "d@x.com"}))
}
