package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesOnCode(t *testing.T) {
	err := InsufficientStock(3, 5)

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrNegativeStock))
	assert.Equal(t, "Insufficient stock. Available: 3, Requested: 5", err.Error())

	wrapped := fmt.Errorf("checkout: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestFrom_WrapsForeignErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := From("record sale", cause)

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Contains(t, err.Error(), "record sale failed")

	nf := NotFound("Item %d not found", 7)
	assert.Same(t, nf, From("x", nf))
	assert.Nil(t, From("x", nil))
}

func TestPartialFailure_CarriesIssues(t *testing.T) {
	err := PartialFailure([]Issue{{ItemID: 1, Reason: "not found"}, {ItemID: 2, Reason: "insufficient quantity", Requested: 4, Available: 1}})

	assert.Len(t, err.Issues, 2)
	assert.Equal(t, "2 line(s) cannot be fulfilled", err.Error())
	assert.True(t, errors.Is(err, ErrPartialFailure))
}
