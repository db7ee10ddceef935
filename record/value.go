// Package record defines the tagged value type that every captured pose,
// descriptor input and interpolation operand is built from.
//
// A Value is exactly one of: a number, an array of numbers, or an ordered
// object of named sub-values. The variant is fixed at construction so the
// codec and interpolation code switch on Kind instead of inspecting runtime
// types.
package record

import (
	"fmt"

	"github.com/teranos/handcap/trip"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	// Invalid is the zero Kind. Algorithms reject it with TypeUnsupported.
	Invalid Kind = iota
	// Number is a single float64 leaf.
	Number
	// Array is an ordered sequence of float64 leaves.
	Array
	// Object is an ordered set of keyed sub-values.
	Object
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "invalid"
	}
}

// Field is one keyed entry of an Object value.
type Field struct {
	Key   string
	Value Value
}

// Value is a number, numeric array or ordered object.
type Value struct {
	kind   Kind
	num    float64
	nums   []float64
	fields []Field
}

// Num returns a Number value.
func Num(f float64) Value {
	return Value{kind: Number, num: f}
}

// Nums returns an Array value holding a copy of fs.
func Nums(fs ...float64) Value {
	cp := make([]float64, len(fs))
	copy(cp, fs)
	return Value{kind: Array, nums: cp}
}

// Obj returns an Object value with the given fields in order.
// A repeated key replaces the earlier entry in place.
func Obj(fields ...Field) Value {
	v := Value{kind: Object, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		v.Set(f.Key, f.Value)
	}
	return v
}

// F is shorthand for building a Field.
func F(key string, v Value) Field {
	return Field{Key: key, Value: v}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Float returns the number held by a Number value.
func (v Value) Float() float64 { return v.num }

// Floats returns the numbers held by an Array value. The slice is shared.
func (v Value) Floats() []float64 { return v.nums }

// Fields returns the entries of an Object value in insertion order. The slice is shared.
func (v Value) Fields() []Field { return v.fields }

// Len returns the number of entries in an Array or Object, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.nums)
	case Object:
		return len(v.fields)
	}
	return 0
}

// Get looks up key in an Object value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Keys returns the keys of an Object value in insertion order.
func (v Value) Keys() []string {
	keys := make([]string, len(v.fields))
	for i, f := range v.fields {
		keys[i] = f.Key
	}
	return keys
}

// Set assigns key on an Object value, appending it when new.
func (v *Value) Set(key string, val Value) {
	if v.kind == Invalid {
		v.kind = Object
	}
	for i := range v.fields {
		if v.fields[i].Key == key {
			v.fields[i].Value = val
			return
		}
	}
	v.fields = append(v.fields, Field{Key: key, Value: val})
}

// Delete removes key from an Object value.
func (v *Value) Delete(key string) {
	for i := range v.fields {
		if v.fields[i].Key == key {
			v.fields = append(v.fields[:i:i], v.fields[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case Array:
		return Nums(v.nums...)
	case Object:
		out := Value{kind: Object, fields: make([]Field, len(v.fields))}
		for i, f := range v.fields {
			out.fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
		}
		return out
	}
	return v
}

// Equal reports whether a and b hold the same variant, shape and numbers.
// Object comparison is order-sensitive.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Number:
		return a.num == b.num
	case Array:
		if len(a.nums) != len(b.nums) {
			return false
		}
		for i := range a.nums {
			if a.nums[i] != b.nums[i] {
				return false
			}
		}
		return true
	case Object:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for i := range a.fields {
			if a.fields[i].Key != b.fields[i].Key || !Equal(a.fields[i].Value, b.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return true
}

// Leaves counts the numbers held by v.
func (v Value) Leaves() int {
	switch v.kind {
	case Number:
		return 1
	case Array:
		return len(v.nums)
	case Object:
		n := 0
		for _, f := range v.fields {
			n += f.Value.Leaves()
		}
		return n
	}
	return 0
}

// FromAny converts a decoded Go value into a Value. Maps are rejected because
// their iteration order is random; use an ordered decoder instead.
func FromAny(x interface{}) (Value, error) {
	switch t := x.(type) {
	case float64:
		return Num(t), nil
	case float32:
		return Num(float64(t)), nil
	case int:
		return Num(float64(t)), nil
	case int64:
		return Num(float64(t)), nil
	case []float64:
		return Nums(t...), nil
	case []interface{}:
		fs := make([]float64, len(t))
		for i, e := range t {
			f, ok := e.(float64)
			if !ok {
				return Value{}, trip.Typef("array element %d is %T, want number", i, e)
			}
			fs[i] = f
		}
		return Nums(fs...), nil
	case []Field:
		return Obj(t...), nil
	case Value:
		return t, nil
	}
	return Value{}, trip.Typef("unsupported leaf type %T", x)
}

// String renders v compactly for logs and test failures.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return string(b)
}
