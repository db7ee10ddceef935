package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

func matrix(seed float64) record.Value {
	m := make([]float64, 16)
	for i := range m {
		m[i] = seed + float64(i)/16
	}
	return record.Nums(m...)
}

func snapshot(ts float64, joints ...string) record.Value {
	left := record.Obj()
	for i, j := range joints {
		left.Set(j, record.Obj(record.F("matrix", matrix(ts+float64(i)))))
	}
	return record.Obj(
		record.F("left_hand_pose", left),
		record.F("right_hand_pose", record.Obj()),
		record.F("head_pose", record.Obj(record.F("matrix", matrix(-ts)))),
		record.F("time", record.Num(ts)),
	)
}

// randomRecord builds a nested record of numbers, arrays and objects.
func randomRecord(r *rand.Rand, depth int) record.Value {
	n := 1 + r.Intn(4)
	out := record.Obj()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("k%d", r.Intn(100))
		switch choice := r.Intn(3); {
		case choice == 0 || depth == 0:
			out.Set(key, record.Num(r.NormFloat64()*1000))
		case choice == 1:
			xs := make([]float64, r.Intn(5))
			for j := range xs {
				xs[j] = r.Float64()
			}
			out.Set(key, record.Nums(xs...))
		default:
			out.Set(key, randomRecord(r, depth-1))
		}
	}
	return out
}

func leafIndices(d Descriptor) []int {
	var out []int
	var walk func(Descriptor)
	walk = func(n Descriptor) {
		if idx, ok := n.IsLeaf(); ok {
			out = append(out, idx)
			return
		}
		for _, it := range n.Items() {
			walk(it)
		}
		for _, e := range n.Entries() {
			walk(e.Node)
		}
	}
	walk(d)
	return out
}

func TestCreateDescriptor_DepthFirstOrder(t *testing.T) {
	sample := record.Obj(
		record.F("b", record.Num(9)),
		record.F("a", record.Obj(record.F("y", record.Nums(7, 8)), record.F("x", record.Num(6)))),
		record.F("c", record.Num(5)),
	)

	d, err := CreateDescriptor(sample)
	require.NoError(t, err)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"b":0,"a":{"y":[1,2],"x":3},"c":4}`, string(raw))
	assert.Equal(t, 5, d.Leaves())
}

func TestCreateDescriptor_ContiguousIndices(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		sample := randomRecord(r, 3)
		d, err := CreateDescriptor(sample)
		require.NoError(t, err)

		idx := leafIndices(d)
		sort.Ints(idx)
		require.Len(t, idx, sample.Leaves())
		for want, got := range idx {
			require.Equal(t, want, got)
		}
		require.NoError(t, d.Check())
	}
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		sample := randomRecord(r, 3)
		d, err := CreateDescriptor(sample)
		require.NoError(t, err)

		row, err := Flatten(sample, d)
		require.NoError(t, err)
		assert.Len(t, row, d.Leaves())

		back, err := Unflatten(row, d)
		require.NoError(t, err)
		require.True(t, record.Equal(sample, back), "round trip changed %s into %s", sample, back)
	}
}

func TestUnflatten_DoesNotMutateDescriptor(t *testing.T) {
	sample := snapshot(0, "wrist", "thumb-tip")
	d, err := CreateDescriptor(sample)
	require.NoError(t, err)
	before := d.Clone()

	row, err := Flatten(snapshot(100, "wrist", "thumb-tip"), d)
	require.NoError(t, err)
	_, err = Unflatten(row, d)
	require.NoError(t, err)

	assert.True(t, Equal(before, d))
}

func TestValidate(t *testing.T) {
	a := snapshot(0, "wrist", "thumb-tip")
	d, err := CreateDescriptor(a)
	require.NoError(t, err)

	assert.True(t, Validate(a, d))
	assert.True(t, Validate(snapshot(77, "wrist", "thumb-tip"), d), "same shape, different numbers")
	assert.False(t, Validate(snapshot(0, "wrist"), d), "fewer keys")
	assert.False(t, Validate(snapshot(0, "thumb-tip", "wrist"), d), "reordered keys")
	assert.False(t, Validate(record.Obj(record.F("time", record.Nums(1))), d))
}

func TestFlatten_FailsFastOnDivergence(t *testing.T) {
	d, err := CreateDescriptor(snapshot(0, "wrist", "thumb-tip"))
	require.NoError(t, err)

	cases := map[string]record.Value{
		"missing joint": snapshot(0, "wrist"),
		"extra joint":   snapshot(0, "wrist", "thumb-tip", "index-finger-tip"),
		"renamed joint": snapshot(0, "wrist", "pinky-finger-tip"),
		"short matrix": record.Obj(
			record.F("left_hand_pose", record.Obj()),
			record.F("right_hand_pose", record.Obj()),
			record.F("head_pose", record.Obj(record.F("matrix", record.Nums(1, 2)))),
			record.F("time", record.Num(0)),
		),
		"not an object": record.Num(3),
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Flatten(rec, d)
			assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
		})
	}
}

func TestFlatten_ReorderedKeysStillLandInTheirSlots(t *testing.T) {
	d, err := CreateDescriptor(record.Obj(record.F("a", record.Num(1)), record.F("b", record.Num(2))))
	require.NoError(t, err)

	row, err := Flatten(record.Obj(record.F("b", record.Num(20)), record.F("a", record.Num(10))), d)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, row)
}

func TestUnflatten_RowLength(t *testing.T) {
	d, err := CreateDescriptor(record.Obj(record.F("a", record.Nums(1, 2))))
	require.NoError(t, err)

	_, err = Unflatten([]float64{1}, d)
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
}

func TestCreateDescriptor_RejectsInvalidLeaf(t *testing.T) {
	_, err := CreateDescriptor(record.Obj(record.F("x", record.Value{})))
	assert.ErrorIs(t, err, trip.ErrTypeUnsupported)
}

func TestRecording_JSONSurvivesUnflatten(t *testing.T) {
	frames := []record.Value{
		snapshot(0, "wrist", "thumb-tip"),
		snapshot(14, "wrist", "thumb-tip"),
		snapshot(28, "wrist", "thumb-tip"),
	}
	rec, err := Encode(frames)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Len())

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(rec))
	assert.True(t, strings.HasPrefix(buf.String(), `{"protocol":{"left_hand_pose":{"wrist":{"matrix":[0,1,2`))

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, Equal(rec.Descriptor, back.Descriptor))

	got, err := back.Frames()
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range frames {
		assert.True(t, record.Equal(frames[i], got[i]), "frame %d", i)
	}
}

func TestEncode_RejectsHeterogeneousFrames(t *testing.T) {
	_, err := Encode([]record.Value{snapshot(0, "wrist"), snapshot(1, "wrist", "thumb-tip")})
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "frame 1")
}

func TestDecode_RejectsBrokenProtocol(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"protocol":{"a":0,"b":0},"flattened_data":[]}`))
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)

	_, err = Decode(strings.NewReader(`{"flattened_data":[]}`))
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)

	_, err = Decode(strings.NewReader(`{"protocol":{"a":-1}}`))
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
}

func TestRecording_Column(t *testing.T) {
	rec, err := Encode([]record.Value{snapshot(10, "wrist"), snapshot(20, "wrist")})
	require.NoError(t, err)

	times, ok := rec.Column("time")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20}, times)

	_, ok = rec.Column("left_hand_pose")
	assert.False(t, ok, "objects are not columns")
	_, ok = rec.Column("missing")
	assert.False(t, ok)
}
