package engine

// Event is a decoded NDJSON line: a generic JSON object whose shape varies
// by adapter but always carries a discriminator under "type" or
// "item"/"type" (§3).
type Event map[string]any

// Discriminator returns the event's routing key: the top-level "type" field
// if present, else "item.type", else "".
func (e Event) Discriminator() string {
	if t, ok := stringField(e, "type"); ok {
		return t
	}
	if item, ok := e["item"].(map[string]any); ok {
		if t, ok := stringField(Event(item), "type"); ok {
			return t
		}
	}
	return ""
}

// String looks up a dotted path of nested object fields and returns the
// string value found there, if any. E.g. String("result", "session_id").
func (e Event) String(path ...string) (string, bool) {
	var cur any = map[string]any(e)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

// Bool looks up a dotted path and returns the bool value found there.
func (e Event) Bool(path ...string) (bool, bool) {
	var cur any = map[string]any(e)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return false, false
		}
		cur, ok = m[key]
		if !ok {
			return false, false
		}
	}
	b, ok := cur.(bool)
	return b, ok
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
