package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal encodes v as compact JSON. It fails if any node of v cannot be
// encoded; Sanitize first to guarantee success.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent is like Marshal but applies json.Indent to the result.
func MarshalIndent(v Value, prefix, indent string) ([]byte, error) {
	compact, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, prefix, indent); err != nil {
		return nil, fmt.Errorf("indent metadata: %w", err)
	}
	return out.Bytes(), nil
}

// Encodable attempts to encode v on its own and returns the failure, if any.
// Arrays and Objects always pass: a container can be written even when some
// of its members cannot, and those members are dealt with individually.
func Encodable(v Value) error {
	switch v.(type) {
	case Array, Object:
		return nil
	}
	var buf bytes.Buffer
	return encode(&buf, v)
}

// MarshalJSON lets an Object be embedded in structs encoded by encoding/json.
func (o Object) MarshalJSON() ([]byte, error) {
	return Marshal(o)
}

// MarshalJSON lets an Array be embedded in structs encoded by encoding/json.
func (a Array) MarshalJSON() ([]byte, error) {
	return Marshal(a)
}

func encode(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		b, err := json.Marshal(json.Number(t))
		if err != nil {
			return fmt.Errorf("encode number %q: %w", string(t), err)
		}
		buf.Write(b)
	case String:
		return encodeString(buf, string(t))
	case Array:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, m.Value); err != nil {
				return fmt.Errorf("key %q: %w", m.Key, err)
			}
		}
		buf.WriteByte('}')
	case Opaque:
		b, err := json.Marshal(t.V)
		if err != nil {
			return fmt.Errorf("encode %T: %w", t.V, err)
		}
		buf.Write(b)
	default:
		return fmt.Errorf("encode %T: unsupported value", v)
	}
	return nil
}

// encodeString writes s as a JSON string without HTML escaping.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
