// Package metadata models free-form subject metadata as a tree of JSON-like
// values and strips whatever cannot be written back out as JSON.
package metadata

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Value is one node of a metadata tree. The concrete types are Null, Bool,
// Number, String, Array, Object and Opaque.
type Value interface {
	isValue()
}

// Null is the JSON null.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number holds the literal text of a JSON number, as decoded. A Number whose
// text is not a valid JSON number cannot be encoded.
type Number string

// String is a JSON string.
type String string

// Array is an ordered sequence of values.
type Array []Value

// Member is a single key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Object is a mapping that keeps its members in insertion order.
type Object []Member

// Opaque wraps a foreign Go value. It is encoded with encoding/json, which
// may fail (functions, channels, complex numbers, non-finite floats, cycles).
type Opaque struct {
	V any
}

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (Array) isValue()  {}
func (Object) isValue() {}
func (Opaque) isValue() {}

// Int returns the Number for n.
func Int(n int64) Number {
	return Number(strconv.FormatInt(n, 10))
}

// Float returns the Number for f. Non-finite floats have no JSON form and
// are returned as Opaque so that they fail encoding.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Opaque{V: f}
	}
	return Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// Get returns the value stored under key.
func (o Object) Get(key string) (Value, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key, or appends a new member.
func (o Object) Set(key string, v Value) Object {
	for i := range o {
		if o[i].Key == key {
			o[i].Value = v
			return o
		}
	}
	return append(o, Member{Key: key, Value: v})
}

// Delete removes key, preserving the order of the remaining members.
func (o Object) Delete(key string) Object {
	out := o[:0:0]
	for _, m := range o {
		if m.Key != key {
			out = append(out, m)
		}
	}
	return out
}

// Keys lists member keys in order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

// FromAny converts plain Go data into a Value. Maps with string keys become
// Objects with sorted keys, slices become Arrays, and anything without a
// direct JSON counterpart is wrapped in Opaque.
func FromAny(x any) Value {
	switch v := x.(type) {
	case nil:
		return Null{}
	case Value:
		return v
	case bool:
		return Bool(v)
	case string:
		return String(v)
	case json.Number:
		return Number(v)
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return Number(strconv.FormatUint(uint64(v), 10))
	case uint8:
		return Number(strconv.FormatUint(uint64(v), 10))
	case uint16:
		return Number(strconv.FormatUint(uint64(v), 10))
	case uint32:
		return Number(strconv.FormatUint(uint64(v), 10))
	case uint64:
		return Number(strconv.FormatUint(v, 10))
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case []any:
		arr := make(Array, len(v))
		for i, e := range v {
			arr[i] = FromAny(e)
		}
		return arr
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(Object, 0, len(v))
		for _, k := range keys {
			obj = append(obj, Member{Key: k, Value: FromAny(v[k])})
		}
		return obj
	default:
		return Opaque{V: x}
	}
}

// ToAny converts v back into plain Go data: map[string]any, []any,
// json.Number, string, bool, nil, or the wrapped value of an Opaque.
func ToAny(v Value) any {
	switch t := v.(type) {
	case Bool:
		return bool(t)
	case Number:
		return json.Number(t)
	case String:
		return string(t)
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for _, m := range t {
			out[m.Key] = ToAny(m.Value)
		}
		return out
	case Opaque:
		return t.V
	default:
		return nil
	}
}
