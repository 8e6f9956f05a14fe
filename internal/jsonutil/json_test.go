package jsonutil_test

import (
	"bytes"
	"testing"

	"github.com/Olprog59/go-microservice/internal/jsonutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string            `json:"name"`
	Tags  map[string]string `json:"tags,omitempty"`
	Count int               `json:"count"`
}

func TestMarshal_SortsMapKeys(t *testing.T) {
	out, err := jsonutil.Marshal(payload{Name: "x", Tags: map[string]string{"b": "2", "a": "1"}, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x","tags":{"a":"1","b":"2"},"count":3}`, string(out))
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jsonutil.NewEncoder(&buf).Encode(payload{Name: "enc", Count: 1}))

	var got payload
	require.NoError(t, jsonutil.NewDecoder(&buf).Decode(&got))
	assert.Equal(t, "enc", got.Name)
	assert.Equal(t, 1, got.Count)
}

func TestUnmarshal_Invalid(t *testing.T) {
	var got payload
	assert.Error(t, jsonutil.Unmarshal([]byte(`{"name":`), &got))
}
