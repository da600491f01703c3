package metadata

// Sanitize returns a copy of v that Marshal can always encode. v itself is
// not modified.
//
// Object members that fail Encodable are dropped. Array elements that fail
// are replaced with Null so that positions stay aligned. Members and elements
// that pass are sanitized in turn. A top-level value that fails becomes Null.
func Sanitize(v Value) Value {
	if Encodable(v) != nil {
		return Null{}
	}
	return sanitize(v)
}

func sanitize(v Value) Value {
	switch t := v.(type) {
	case Object:
		out := make(Object, 0, len(t))
		for _, m := range t {
			if Encodable(m.Value) != nil {
				continue
			}
			out = append(out, Member{Key: m.Key, Value: sanitize(m.Value)})
		}
		return out
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			if Encodable(e) != nil {
				out[i] = Null{}
				continue
			}
			out[i] = sanitize(e)
		}
		return out
	case nil:
		return Null{}
	default:
		return v
	}
}
