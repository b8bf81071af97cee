package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection_JSON(t *testing.T) {
	for _, d := range []Direction{DirectionNone, DirectionBiDirectional, DirectionFactIsSource, DirectionFactIsDestination} {
		data, err := json.Marshal(d)
		require.NoError(t, err)

		var back Direction
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, d, back)
	}
}

func TestDirection_Unknown(t *testing.T) {
	_, err := ParseDirection("Sideways")
	assert.True(t, errors.Is(err, ErrDataIntegrity))

	_, err = DirectionFromByte(42)
	assert.True(t, errors.Is(err, ErrDataIntegrity))

	var d Direction
	err = json.Unmarshal([]byte(`"Sideways"`), &d)
	assert.True(t, errors.Is(err, ErrDataIntegrity))

	_, err = json.Marshal(Direction(9))
	assert.Error(t, err)
	assert.Equal(t, "Direction(9)", Direction(9).String())
}

func TestAccessMode_Parse(t *testing.T) {
	m, err := ParseAccessMode("Explicit")
	require.NoError(t, err)
	assert.Equal(t, AccessModeExplicit, m)

	_, err = ParseAccessMode("Secret")
	assert.True(t, errors.Is(err, ErrDataIntegrity))
}

func TestFact_FlagsAndACL(t *testing.T) {
	subject := uuid.New()
	f := &Fact{
		Flags: FlagRetractedHint,
		ACL:   []AclEntry{{SubjectID: subject}},
	}

	assert.True(t, f.HasFlag(FlagRetractedHint))
	assert.False(t, f.HasFlag(FlagBidirectionalBinding))
	assert.True(t, f.InACL(subject))
	assert.False(t, f.InACL(uuid.New()))

	var nilFact *Fact
	assert.False(t, nilFact.HasFlag(FlagRetractedHint))
	assert.False(t, nilFact.InACL(subject))
}

func TestAccessMode_Ordering(t *testing.T) {
	assert.True(t, AccessModePublic.LessRestrictiveThan(AccessModeRoleBased))
	assert.True(t, AccessModeRoleBased.LessRestrictiveThan(AccessModeExplicit))
	assert.False(t, AccessModeExplicit.LessRestrictiveThan(AccessModeRoleBased))
	assert.False(t, AccessModeRoleBased.LessRestrictiveThan(AccessModeRoleBased))
}
