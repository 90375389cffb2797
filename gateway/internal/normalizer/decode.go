package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotJSONObject is returned by Decode for bodies that are not a JSON object.
var ErrNotJSONObject = errors.New("payload is not a JSON object")

// Decode parses raw as a JSON object, keeping numbers as json.Number so ids
// and phone numbers survive without float rounding.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSONObject, err)
	}
	if payload == nil {
		return nil, ErrNotJSONObject
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrNotJSONObject)
	}
	return payload, nil
}
