package keys

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingKeyRoundTrip(t *testing.T) {
	obj, fact := uuid.New(), uuid.New()
	key := EncodeBindingKey(obj, fact)
	require.Len(t, key, PairKeySize)
	assert.True(t, bytes.HasPrefix(key, EncodeBindingPrefix(obj)))

	gotObj, gotFact, err := DecodeBindingKey(key)
	require.NoError(t, err)
	assert.Equal(t, obj, gotObj)
	assert.Equal(t, fact, gotFact)

	_, _, err = DecodeMetaFactKey(key)
	assert.Error(t, err, "prefix mismatch")
	_, _, err = DecodeBindingKey(key[:10])
	assert.Error(t, err, "short key")
}

func TestMetaFactKeyRoundTrip(t *testing.T) {
	ref, fact := uuid.New(), uuid.New()
	key := EncodeMetaFactKey(ref, fact)
	assert.True(t, bytes.HasPrefix(key, EncodeMetaFactPrefix(ref)))

	gotRef, gotFact, err := DecodeMetaFactKey(key)
	require.NoError(t, err)
	assert.Equal(t, ref, gotRef)
	assert.Equal(t, fact, gotFact)
}

func TestRecordKeysDoNotCollide(t *testing.T) {
	id := uuid.New()
	all := [][]byte{
		EncodeObjectKey(id),
		EncodeFactKey(id),
		EncodeObjectTypeKey(id),
		EncodeFactTypeKey(id),
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			assert.NotEqual(t, all[i], all[j])
		}
	}
}

func TestTypeNameKey(t *testing.T) {
	assert.Equal(t, EncodeTypeNameKey(FactTypePrefix, "Retraction"), EncodeTypeNameKey(FactTypePrefix, "Retraction"))
	assert.NotEqual(t, EncodeTypeNameKey(FactTypePrefix, "Retraction"), EncodeTypeNameKey(ObjectTypePrefix, "Retraction"))
	assert.NotEqual(t, EncodeTypeNameKey(FactTypePrefix, "a"), EncodeTypeNameKey(FactTypePrefix, "b"))
}
