package sheetbars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, sanitizeJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, sanitizeJSONBlock(`{"a":1}`))
	// незакрытая обёртка — строка как есть
	assert.Equal(t, "```json {\"a\":1}", sanitizeJSONBlock("```json {\"a\":1}"))
}

func TestDecodeData_ShallowMerge(t *testing.T) {
	v, err := DecodeData(
		`{"user": {"name": "a", "age": 1}, "keep": true}`,
		"   ",
		`{"user": {"name": "b"}}`,
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"user": map[string]interface{}{"name": "b"},
		"keep": true,
	}, v)
}

func TestDecodeData_NonObjectRootReplaces(t *testing.T) {
	v, err := DecodeData(`{"a": 1}`, `[1, 2]`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 2.0}, v)

	v, err = DecodeData()
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = DecodeData(`{"a": 1}`, `{oops}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "документ 2")
}
