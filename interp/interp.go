// Package interp blends two structurally identical records leaf by leaf.
package interp

import (
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

// Lerp returns a*(1-t) + b*t.
func Lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

// Interpolate walks a's shape and linearly blends every number with the
// matching number in b. t is not clamped, so values outside [0,1]
// extrapolate. Keys present in a but missing from b, or arrays of
// different length, fail with SchemaMismatch. A leaf of unknown kind fails
// with TypeUnsupported.
//
// Example usage:
//
//	mid, err := interp.Interpolate(frames[i], frames[i+1], 0.5)
//	if err != nil {
//	    return err // never apply a half-built pose
//	}
func Interpolate(a, b record.Value, t float64) (record.Value, error) {
	return walk(a, b, t, "")
}

func walk(a, b record.Value, t float64, path string) (record.Value, error) {
	switch a.Kind() {
	case record.Number:
		if b.Kind() != record.Number {
			return record.Value{}, trip.Schemaf("%s: number paired with %s", pathOrRoot(path), b.Kind())
		}
		return record.Num(Lerp(a.Float(), b.Float(), t)), nil

	case record.Array:
		if b.Kind() != record.Array {
			return record.Value{}, trip.Schemaf("%s: array paired with %s", pathOrRoot(path), b.Kind())
		}
		as, bs := a.Floats(), b.Floats()
		if len(as) != len(bs) {
			return record.Value{}, trip.Schemaf("%s: array length %d vs %d", pathOrRoot(path), len(as), len(bs))
		}
		out := make([]float64, len(as))
		for i := range as {
			out[i] = Lerp(as[i], bs[i], t)
		}
		return record.Nums(out...), nil

	case record.Object:
		if b.Kind() != record.Object {
			return record.Value{}, trip.Schemaf("%s: object paired with %s", pathOrRoot(path), b.Kind())
		}
		fields := make([]record.Field, 0, a.Len())
		for _, f := range a.Fields() {
			bv, ok := b.Get(f.Key)
			if !ok {
				return record.Value{}, trip.Schemaf("%s: key %q missing from second operand", pathOrRoot(path), f.Key)
			}
			v, err := walk(f.Value, bv, t, path+"/"+f.Key)
			if err != nil {
				return record.Value{}, err
			}
			fields = append(fields, record.F(f.Key, v))
		}
		return record.Obj(fields...), nil
	}

	return record.Value{}, trip.Typef("%s: cannot interpolate %s leaf", pathOrRoot(path), a.Kind())
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
