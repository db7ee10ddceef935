package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/teranos/handcap/trip"
)

// MarshalJSON encodes v keeping object key order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Number:
		return appendFloat(buf, v.num)
	case Array:
		buf.WriteByte('[')
		for i, f := range v.nums {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendFloat(buf, f); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case Object:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}
	return trip.Typef("cannot encode %s value", v.kind)
}

// appendFloat writes f the way encoding/json does, so values survive a
// decode/encode cycle bit for bit.
func appendFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return trip.Typef("unsupported float value %v", f)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(buf.AvailableBuffer(), f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	buf.Write(b)
	return nil
}

// UnmarshalJSON decodes an ordered Value. Strings, booleans, null and arrays
// holding anything but numbers fail with TypeUnsupported.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := Decode(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Decode reads the next Value from dec. The decoder should have UseNumber set
// so integers beyond 2^53 are reported instead of silently rounded.
func Decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, trip.Typef("number %s: %v", t, err)
		}
		return Num(f), nil
	case float64:
		return Num(t), nil
	case json.Delim:
		switch t {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeObject(dec)
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	case nil:
		return Value{}, trip.Typef("null leaf")
	}
	return Value{}, trip.Typef("unsupported leaf %T", tok)
}

func decodeArray(dec *json.Decoder) (Value, error) {
	nums := make([]float64, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		elem, err := decodeToken(dec, tok)
		if err != nil {
			return Value{}, err
		}
		if elem.kind != Number {
			return Value{}, trip.Typef("array element %d is %s, want number", len(nums), elem.kind)
		}
		nums = append(nums, elem.num)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return Value{kind: Array, nums: nums}, nil
}

func decodeObject(dec *json.Decoder) (Value, error) {
	out := Value{kind: Object, fields: make([]Field, 0)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key %v is not a string", tok)
		}
		val, err := Decode(dec)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", key, err)
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return out, nil
}

// ReadJSON decodes a single Value from r.
func ReadJSON(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return Decode(dec)
}
