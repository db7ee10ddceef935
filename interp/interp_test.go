package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

func pose(x float64, ts float64) record.Value {
	return record.Obj(
		record.F("left_hand_pose", record.Obj(
			record.F("index-finger-tip", record.Obj(record.F("matrix", record.Nums(1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, x, 2*x, 0, 1)))),
		)),
		record.F("time", record.Num(ts)),
	)
}

func TestInterpolate_Boundaries(t *testing.T) {
	a, b := pose(0, 0), pose(1, 500)

	at0, err := Interpolate(a, b, 0)
	require.NoError(t, err)
	assert.True(t, record.Equal(a, at0), "t=0 must reproduce a, got %s", at0)

	at1, err := Interpolate(a, b, 1)
	require.NoError(t, err)
	assert.True(t, record.Equal(b, at1), "t=1 must reproduce b, got %s", at1)
}

func TestInterpolate_Midpoint(t *testing.T) {
	mid, err := Interpolate(pose(0, 0), pose(1, 500), 0.5)
	require.NoError(t, err)

	assert.True(t, record.Equal(pose(0.5, 250), mid), "got %s", mid)
}

func TestInterpolate_Extrapolates(t *testing.T) {
	out, err := Interpolate(record.Num(1), record.Num(3), 1.5)
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.Float())

	out, err = Interpolate(record.Num(1), record.Num(3), -1)
	require.NoError(t, err)
	assert.Equal(t, -1.0, out.Float())
}

func TestInterpolate_KeepsOrderOfFirstOperand(t *testing.T) {
	a := record.Obj(record.F("b", record.Num(0)), record.F("a", record.Num(0)))
	b := record.Obj(record.F("a", record.Num(2)), record.F("b", record.Num(4)))

	out, err := Interpolate(a, b, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, out.Keys())
	got, _ := out.Get("b")
	assert.Equal(t, 2.0, got.Float())
}

func TestInterpolate_SchemaMismatch(t *testing.T) {
	cases := map[string][2]record.Value{
		"missing key":   {record.Obj(record.F("a", record.Num(1))), record.Obj(record.F("b", record.Num(1)))},
		"array length":  {record.Nums(1, 2), record.Nums(1)},
		"kind mismatch": {record.Num(1), record.Nums(1)},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Interpolate(c[0], c[1], 0.5)
			assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
		})
	}
}

func TestInterpolate_TypeUnsupported(t *testing.T) {
	a := record.Obj(record.F("bad", record.Value{}))
	b := record.Obj(record.F("bad", record.Value{}))

	_, err := Interpolate(a, b, 0.5)
	assert.ErrorIs(t, err, trip.ErrTypeUnsupported)
	assert.Contains(t, err.Error(), "/bad")
}
