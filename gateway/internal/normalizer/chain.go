package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChainNormalizer understands flat payloads, a top-level messages array and
// the nested cloud API layout. It supports every provider.
type ChainNormalizer struct{}

func (c *ChainNormalizer) Supports(string) bool { return true }

func (c *ChainNormalizer) Normalize(_ string, payload map[string]any) Message {
	msg0 := lookup(payload, "messages", 0)
	value := lookup(payload, "entry", 0, "changes", 0, "value")
	cloudMsg := lookup(value, "messages", 0)

	return Message{
		ProviderMessageID: first(
			lookup(payload, "id"),
			lookup(msg0, "id"),
			lookup(cloudMsg, "id"),
		),
		ExternalSenderID: first(
			lookup(payload, "from"),
			lookup(msg0, "from"),
			lookup(cloudMsg, "from"),
		),
		SenderName: first(
			lookup(payload, "name"),
			lookup(payload, "contacts", 0, "profile", "name"),
			lookup(value, "contacts", 0, "profile", "name"),
		),
		Body: first(
			textBody(payload),
			lookup(payload, "body"),
			textBody(msg0),
			lookup(msg0, "body"),
			textBody(cloudMsg),
		),
	}
}

// textBody reads "text" as either a string or an object with "body".
func textBody(node any) any {
	text := lookup(node, "text")
	if obj, ok := text.(map[string]any); ok {
		return obj["body"]
	}
	return text
}

// lookup walks path through nested maps (string keys) and slices (int indexes).
// Any miss returns nil.
func lookup(node any, path ...any) any {
	cur := node
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = m[key]
		case int:
			s, ok := cur.([]any)
			if !ok || key < 0 || key >= len(s) {
				return nil
			}
			cur = s[key]
		default:
			return nil
		}
	}
	return cur
}

func first(values ...any) string {
	for _, v := range values {
		if s := stringValue(v); s != "" {
			return s
		}
	}
	return ""
}

// stringValue renders scalars as strings; phone numbers often arrive as JSON numbers.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
