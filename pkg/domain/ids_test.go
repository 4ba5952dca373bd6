package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "naturewatch/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	raw := uuid.New()

	parsed, err := ParseUserID(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw.String(), parsed.String())
	assert.False(t, parsed.IsNil())
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not a uuid", "bluethroat-42"},
		{"truncated", uuid.New().String()[:20]},
		{"nil uuid", uuid.Nil.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

// Each Parse function reports its own field name so transport errors point at
// the right request parameter.
func TestParseFieldNames(t *testing.T) {
	fieldOf := func(err error) string {
		var dErr *dErrors.Error
		require.ErrorAs(t, err, &dErr)
		return dErr.Field
	}

	_, err := ParseUserID("")
	assert.Equal(t, "user_id", fieldOf(err))

	_, err = ParseObservationID("")
	assert.Equal(t, "observation_id", fieldOf(err))

	_, err = ParseSpeciesID("")
	assert.Equal(t, "species_id", fieldOf(err))

	_, err = ParseDisputeID("")
	assert.Equal(t, "dispute_id", fieldOf(err))
}

func TestNewIDsAreDistinctAndNonNil(t *testing.T) {
	a, b := NewObservationID(), NewObservationID()
	assert.False(t, a.IsNil())
	assert.NotEqual(t, a, b)

	assert.False(t, NewVerificationID().IsNil())
	assert.False(t, NewDisputeID().IsNil())
	assert.False(t, NewVoteID().IsNil())
}

func TestZeroValueIsNil(t *testing.T) {
	var u UserID
	assert.True(t, u.IsNil())

	var o ObservationID
	assert.True(t, o.IsNil())
}
