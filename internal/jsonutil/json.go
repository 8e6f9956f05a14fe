// Package jsonutil wraps sonic so the rest of the code base does not depend
// on a particular JSON implementation.
package jsonutil

import (
	"io"

	"github.com/bytedance/sonic"
)

// api mirrors encoding/json behaviour: sorted map keys, HTML escaping.
var api = sonic.ConfigStd

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent encodes v with indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}
