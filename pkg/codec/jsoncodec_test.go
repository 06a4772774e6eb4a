package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical_SortedKeysNoEscape(t *testing.T) {
	body, ct, err := Canonical(map[string]any{"b": 1, "a": "<x>"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.Equal(t, `{"a":"<x>","b":1}`, string(body))
}

func TestCanonical_RawMessageCompacted(t *testing.T) {
	body, _, err := Canonical(json.RawMessage("{ \"a\" : [1, 2] }"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, string(body))

	_, _, err = Canonical(json.RawMessage("{nope"))
	require.Error(t, err)
}

func TestJSONStrict_Unmarshal(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	require.NoError(t, JSONStrict.Unmarshal([]byte(`{"a":1}`), &v))
	assert.Equal(t, 1, v.A)

	require.Error(t, JSONStrict.Unmarshal([]byte(`{"a":1,"b":2}`), &v), "unknown field")
	require.Error(t, JSONStrict.Unmarshal([]byte(`{"a":1} {}`), &v), "trailing content")
}
