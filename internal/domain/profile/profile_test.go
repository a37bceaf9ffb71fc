package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/k9quest/progression-hub/internal/domain/shared"
)

func TestDelta_Validate(t *testing.T) {
	ok := Delta{UserID: "u1", Field: FieldCoins, Amount: 10, Reason: "daily.login"}
	assert.NoError(t, ok.Validate())

	noUser := ok
	noUser.UserID = " "
	assert.ErrorIs(t, noUser.Validate(), shared.ErrInvalidID)

	xp := ok
	xp.Field = "xp"
	assert.ErrorIs(t, xp.Validate(), shared.ErrUnsupportedField)

	negative := ok
	negative.Amount = -5
	assert.ErrorIs(t, negative.Validate(), shared.ErrInvalidInput)

	zero := ok
	zero.Amount = 0
	assert.ErrorIs(t, zero.Validate(), shared.ErrNonPositiveDelta)
}
