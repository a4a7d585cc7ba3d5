package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodesKeepTheirOrder(t *testing.T) {
	for i, c := range []Code{CodeConfiguration, CodeTransient, CodeUnimplemented, CodeRace} {
		assert.Equal(t, i, int(c))
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("no stops")
	err := Wrap(CodeConfiguration, "steering.SetRoute", cause)
	assert.Contains(t, err.Error(), "configuration")
	assert.Contains(t, err.Error(), "steering.SetRoute")
	assert.ErrorIs(t, err, cause)
}

func TestCodeOfFollowsWrapChain(t *testing.T) {
	err := fmt.Errorf("agent a1: %w", Transient("rental.RentAny", "station empty"))
	assert.True(t, IsTransient(err))
	assert.False(t, IsConfiguration(err))

	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
}
