package quote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_AcceptsNumbersAndStrings(t *testing.T) {
	var s Sticker
	require.NoError(t, json.Unmarshal([]byte(`{"width":100,"height":" 52.5 ","quantity":null}`), &s))

	assert.Equal(t, Value("100"), s.Width)
	assert.Equal(t, Value("52.5"), s.Height)
	assert.Equal(t, Value(""), s.Quantity)
	assert.Equal(t, "52.5", s.Height.Decimal().String())
	assert.True(t, s.Quantity.Decimal().IsZero())
}

func TestValue_RejectsOtherJSONTypes(t *testing.T) {
	var s Sticker
	assert.Error(t, json.Unmarshal([]byte(`{"width":true}`), &s))
	assert.Error(t, json.Unmarshal([]byte(`{"width":[1]}`), &s))
}
