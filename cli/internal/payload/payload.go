// Package payload reads event payloads for relayctl publish.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotObject is returned when the document is not a mapping.
var ErrNotObject = errors.New("payload must be a mapping")

// Load reads path, or stdin when path is "-". JSON is valid YAML, so both
// formats go through the same decoder.
func Load(path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return Parse(data)
}

// Parse decodes one YAML or JSON mapping. Nested mappings come back as
// map[string]any so the result can be marshalled to JSON.
func Parse(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	obj, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
