package wire

import (
	"bytes"
	"encoding/gob"
)

// EncodePayload gob-encodes v into an opcode-specific payload. Each
// payload shape is small and varies per opcode; gob spares every server
// its own bespoke marshaler while keeping the fixed Header (§4.1) as the
// only bit-exact part of the contract.
func EncodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePayload gob-decodes payload into v.
func DecodePayload(payload []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}
