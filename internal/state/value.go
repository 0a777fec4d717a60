// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind identifies the dynamic type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindUint
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable typed state value. The zero Value is null.
//
// Accessors are lenient: asking a Value for a type it does not hold
// converts where that is meaningful and returns the zero value otherwise,
// so a missing field reads as 0/false/"".
type Value struct {
	kind Kind
	num  uint64 // bool, uint, int (two's complement) and float bits
	str  string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Uint returns an unsigned integer value.
func Uint(u uint64) Value { return Value{kind: KindUint, num: u} }

// Int returns a signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array returns an array value holding a copy of elems.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value(nil), elems...)}
}

// Object returns an object value holding a copy of fields.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns v as a boolean. Numbers are true when non-zero.
func (v Value) AsBool() bool {
	switch v.kind {
	case KindBool, KindUint, KindInt:
		return v.num != 0
	case KindFloat:
		return math.Float64frombits(v.num) != 0
	}
	return false
}

// AsUint returns v truncated to 32 bits. Signed values keep their two's
// complement bit pattern, so -1 reads as 0xFFFFFFFF.
func (v Value) AsUint() uint32 {
	switch v.kind {
	case KindBool, KindUint, KindInt:
		return uint32(v.num)
	case KindFloat:
		return ClampUint32(math.Float64frombits(v.num))
	}
	return 0
}

// AsInt returns v as a signed 32 bit integer.
func (v Value) AsInt() int32 {
	switch v.kind {
	case KindBool, KindUint, KindInt:
		return int32(v.num)
	case KindFloat:
		return int32(math.Float64frombits(v.num))
	}
	return 0
}

// AsFloat returns v as a 32 bit float.
func (v Value) AsFloat() float32 {
	switch v.kind {
	case KindBool, KindUint:
		return float32(v.num)
	case KindInt:
		return float32(int64(v.num))
	case KindFloat:
		return float32(math.Float64frombits(v.num))
	}
	return 0
}

// AsString returns the string held by v, or "" for other kinds.
func (v Value) AsString() string {
	if v.kind == KindString {
		return v.str
	}
	return ""
}

// Get returns the named field of an object value.
func (v Value) Get(name string) Value {
	if v.kind != KindObject {
		return Value{}
	}
	return v.obj[name]
}

// Index returns the i-th element of an array value.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}
	}
	return v.arr[i]
}

// Len returns the number of elements of an array or fields of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Keys returns the sorted field names of an object value.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of the object v with field name set to field.
// A non-object v is treated as an empty object.
func (v Value) With(name string, field Value) Value {
	obj := make(map[string]Value, len(v.obj)+1)
	if v.kind == KindObject {
		for k, f := range v.obj {
			obj[k] = f
		}
	}
	obj[name] = field
	return Value{kind: KindObject, obj: obj}
}

// WithIndex returns a copy of the array v with element i replaced.
func (v Value) WithIndex(i int, elem Value) (Value, error) {
	if v.kind != KindArray {
		return v, fmt.Errorf("state: %s is not an array", v.kind)
	}
	if i < 0 || i >= len(v.arr) {
		return v, fmt.Errorf("state: index %d out of range [0, %d)", i, len(v.arr))
	}
	arr := append([]Value(nil), v.arr...)
	arr[i] = elem
	return Value{kind: KindArray, arr: arr}, nil
}

// Equal reports whether v and o hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, f := range v.obj {
			g, ok := o.obj[k]
			if !ok || !f.Equal(g) {
				return false
			}
		}
		return true
	default:
		return v.num == o.num
	}
}

// Interface converts v into plain Go values (bool, uint64, int64,
// float64, string, []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.num != 0
	case KindUint:
		return v.num
	case KindInt:
		return int64(v.num)
	case KindFloat:
		return math.Float64frombits(v.num)
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			out[k] = f.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// FromAny builds a Value from decoded JSON or YAML data. Non-negative
// integers become KindUint, negative ones KindInt.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return fromInt64(int64(t)), nil
	case int32:
		return fromInt64(int64(t)), nil
	case int64:
		return fromInt64(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return fromInt64(int64(t)), nil
		}
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return fromInt64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("state: invalid number %q", t.String())
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = ev
		}
		return Value{kind: KindObject, obj: obj}, nil
	default:
		return Value{}, fmt.Errorf("state: unsupported type %T", x)
	}
}

func fromInt64(i int64) Value {
	if i < 0 {
		return Int(i)
	}
	return Uint(uint64(i))
}

// ClampUint32 converts f to uint32, saturating at the type bounds.
// NaN and negative values give 0.
func ClampUint32(f float64) uint32 {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(f)
}
