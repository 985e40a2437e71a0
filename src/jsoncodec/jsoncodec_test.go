package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_UTF8(t *testing.T) {
	data, err := Marshal(map[string]string{"greeting": "héllo wörld"})
	require.NoError(t, err)

	assert.True(t, utf8.Valid(data))
	assert.True(t, Valid(data))
	assert.JSONEq(t, `{"greeting":"héllo wörld"}`, string(data))
}

func TestMarshal_PlainString(t *testing.T) {
	data, err := Marshal("Test sending message to celery")
	require.NoError(t, err)
	assert.Equal(t, `"Test sending message to celery"`, string(data))
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, struct {
		Name string `json:"name"`
	}{Name: "x"}))

	var out map[string]string
	require.NoError(t, Decode(strings.NewReader(buf.String()), &out))
	assert.Equal(t, "x", out["name"])
}

func TestValid_Rejects(t *testing.T) {
	assert.False(t, Valid([]byte(`{"name":`)))
	assert.Error(t, Unmarshal([]byte(`nope`), &struct{}{}))
}
