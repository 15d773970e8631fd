package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string   `json:"type"`
	AckID   string   `json:"ackId,omitempty"`
	Targets []string `json:"targets"`
}

func TestMarshalUnmarshal(t *testing.T) {
	original := frame{
		Type:    "new-message",
		AckID:   "a1",
		Targets: []string{"u1", "u2"},
	}

	data, err := Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"new-message"`)
	assert.Contains(t, string(data), `"ackId":"a1"`)

	var decoded frame
	err = Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	err = Unmarshal([]byte(`{"type":`), &decoded)
	assert.Error(t, err)
}
