package session

// KeyUserID is the public data key that mirrors the owning user identifier.
// It is maintained by the engine and cannot be overwritten by handlers.
const KeyUserID = "userId"

// Data is the dynamic key-value payload carried by a session.
// Values must be JSON-serializable. Applications layer typed accessors on top
// instead of baking domain types into the engine.
type Data map[string]any

// Clone returns a shallow copy of the data map.
// A nil receiver yields an empty, writable map.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String returns the value under key if it is a string.
func (d Data) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}

// Bool returns the value under key if it is a bool.
func (d Data) Bool(key string) (bool, bool) {
	v, ok := d[key].(bool)
	return v, ok
}

// Int returns the value under key if it is an integer.
// JSON round-trips decode numbers as float64, so both forms are accepted.
func (d Data) Int(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// merged overlays partial onto base and returns the result.
// Keys present in partial win; neither input is mutated.
func merged(base, partial Data) Data {
	out := base.Clone()
	for k, v := range partial {
		out[k] = v
	}
	return out
}
