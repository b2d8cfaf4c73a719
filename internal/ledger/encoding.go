package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Encoding selects how payloads are written to a stream. Nodes before
// MultiChain 2.0 only accept hex data; later nodes also accept JSON objects.
type Encoding string

const (
	EncodingHex  Encoding = "hex"
	EncodingJSON Encoding = "json"
)

// Valid reports whether e is a supported encoding
func (e Encoding) Valid() bool {
	return e == EncodingHex || e == EncodingJSON
}

// encodePayload converts a JSON payload into the publish data parameter
func encodePayload(enc Encoding, payload json.RawMessage) (any, error) {
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}
	compact := &bytes.Buffer{}
	if err := json.Compact(compact, payload); err != nil {
		return nil, fmt.Errorf("failed to compact payload: %w", err)
	}

	switch enc {
	case EncodingHex:
		return hex.EncodeToString(compact.Bytes()), nil
	case EncodingJSON:
		return map[string]json.RawMessage{"json": compact.Bytes()}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}

// offchainRef is the placeholder a node returns in place of item data that
// is too large to include inline.
type offchainRef struct {
	TxID string `json:"txid"`
	Vout int    `json:"vout"`
}

// decodeData normalizes item data from any wire shape into the JSON payload
// it carries. A non-nil ref means the data must first be fetched with
// gettxoutdata.
func decodeData(data json.RawMessage) (payload json.RawMessage, ref *offchainRef, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil, fmt.Errorf("%w: empty data", ErrUndecodable)
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid hex: %v", ErrUndecodable, err)
		}
		if !json.Valid(raw) {
			return nil, nil, fmt.Errorf("%w: hex data is not JSON", ErrUndecodable)
		}
		return raw, nil, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		if v, ok := obj["json"]; ok {
			return v, nil, nil
		}
		if v, ok := obj["text"]; ok {
			var text string
			if err := json.Unmarshal(v, &text); err != nil || !json.Valid([]byte(text)) {
				return nil, nil, fmt.Errorf("%w: text data is not JSON", ErrUndecodable)
			}
			return json.RawMessage(text), nil, nil
		}
		if _, ok := obj["txid"]; ok {
			var r offchainRef
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
			}
			return nil, &r, nil
		}
		return nil, nil, fmt.Errorf("%w: unknown object wrapper", ErrUndecodable)
	default:
		return nil, nil, fmt.Errorf("%w: unexpected data type", ErrUndecodable)
	}
}
