package codec

import (
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

// Flatten writes every number of rec into the row slot named by d.
// Any divergence between rec and d (missing or extra keys, a different
// container kind, a different array length) fails with SchemaMismatch
// before a wrong slot is written.
func Flatten(rec record.Value, d Descriptor) ([]float64, error) {
	row := make([]float64, d.Leaves())
	if err := flattenInto(row, rec, d, ""); err != nil {
		return nil, err
	}
	return row, nil
}

func flattenInto(row []float64, v record.Value, d Descriptor, path string) error {
	switch d.kind {
	case leafNode:
		if v.Kind() != record.Number {
			return trip.Schemaf("%s: want number, got %s", where(path), v.Kind())
		}
		if d.index < 0 || d.index >= len(row) {
			return trip.Schemaf("%s: descriptor index %d outside row of %d", where(path), d.index, len(row))
		}
		row[d.index] = v.Float()
		return nil

	case listNode:
		if v.Kind() != record.Array {
			return trip.Schemaf("%s: want array, got %s", where(path), v.Kind())
		}
		nums := v.Floats()
		if len(nums) != len(d.items) {
			return trip.Schemaf("%s: array length %d, descriptor expects %d", where(path), len(nums), len(d.items))
		}
		for i, it := range d.items {
			idx, ok := it.IsLeaf()
			if !ok {
				return trip.Typef("%s[%d]: nested containers inside arrays are not supported", where(path), i)
			}
			if idx < 0 || idx >= len(row) {
				return trip.Schemaf("%s[%d]: descriptor index %d outside row of %d", where(path), i, idx, len(row))
			}
			row[idx] = nums[i]
		}
		return nil

	case recordNode:
		if v.Kind() != record.Object {
			return trip.Schemaf("%s: want object, got %s", where(path), v.Kind())
		}
		if v.Len() != len(d.entries) {
			return trip.Schemaf("%s: %d keys, descriptor expects %d", where(path), v.Len(), len(d.entries))
		}
		for _, e := range d.entries {
			child, ok := v.Get(e.Key)
			if !ok {
				return trip.Schemaf("%s: key %q missing", where(path), e.Key)
			}
			if err := flattenInto(row, child, e.Node, path+"/"+e.Key); err != nil {
				return err
			}
		}
		return nil
	}
	return trip.Schemaf("%s: empty descriptor node", where(path))
}

// Unflatten rebuilds a record from row using d. The descriptor is read only.
func Unflatten(row []float64, d Descriptor) (record.Value, error) {
	if n := d.Leaves(); len(row) != n {
		return record.Value{}, trip.Schemaf("row has %d values, descriptor expects %d", len(row), n)
	}
	return rebuild(row, d, "")
}

func rebuild(row []float64, d Descriptor, path string) (record.Value, error) {
	switch d.kind {
	case leafNode:
		if d.index < 0 || d.index >= len(row) {
			return record.Value{}, trip.Schemaf("%s: descriptor index %d outside row of %d", where(path), d.index, len(row))
		}
		return record.Num(row[d.index]), nil
	case listNode:
		nums := make([]float64, len(d.items))
		for i, it := range d.items {
			idx, ok := it.IsLeaf()
			if !ok {
				return record.Value{}, trip.Typef("%s[%d]: nested containers inside arrays are not supported", where(path), i)
			}
			if idx < 0 || idx >= len(row) {
				return record.Value{}, trip.Schemaf("%s[%d]: descriptor index %d outside row of %d", where(path), i, idx, len(row))
			}
			nums[i] = row[idx]
		}
		return record.Nums(nums...), nil
	case recordNode:
		fields := make([]record.Field, 0, len(d.entries))
		for _, e := range d.entries {
			child, err := rebuild(row, e.Node, path+"/"+e.Key)
			if err != nil {
				return record.Value{}, err
			}
			fields = append(fields, record.F(e.Key, child))
		}
		return record.Obj(fields...), nil
	}
	return record.Value{}, trip.Schemaf("%s: empty descriptor node", where(path))
}

// Validate reports whether rec has exactly the shape d was derived from.
func Validate(rec record.Value, d Descriptor) bool {
	fresh, err := CreateDescriptor(rec)
	if err != nil {
		return false
	}
	return Equal(fresh, d)
}
