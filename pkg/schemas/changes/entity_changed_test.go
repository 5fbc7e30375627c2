package changes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityChangedV1_WireShape(t *testing.T) {
	body, err := EntityChangedV1{ID: "t-1", Operation: Delete}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"t-1","operation":"delete"}`, string(body))
}

func TestUnmarshalEntityChangedV1_Validates(t *testing.T) {
	_, err := UnmarshalEntityChangedV1([]byte(`{"id":"","operation":"upsert"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidContract))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Issues, 2)
	assert.Equal(t, "id", verr.Issues[0].Field)
	assert.Equal(t, "operation", verr.Issues[1].Field)
}

func TestUnmarshalEntityChangedV1_OK(t *testing.T) {
	ev, err := UnmarshalEntityChangedV1([]byte(`{"id":"c-9","operation":"update"}`))
	require.NoError(t, err)
	assert.Equal(t, EntityChangedV1{ID: "c-9", Operation: Update}, ev)
}
