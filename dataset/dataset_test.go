package dataset

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/handcap/codec"
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

func frame(t float64, x float64) record.Value {
	return record.Obj(
		record.F("left_hand_pose", record.Obj(
			record.F("wrist", record.Obj(record.F("matrix", record.Nums(x, x*2, 1)))),
		)),
		record.F("time", record.Num(t)),
	)
}

func writeRecording(t *testing.T, dir, name string, frames ...record.Value) string {
	t.Helper()
	rec, err := codec.Encode(frames)
	require.NoError(t, err)
	rec.IP = "10.0.0.2"
	rec.TimeReceivedNs = 1_700_000_000_000_000_000
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestListIsFlatAndSorted(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir, "b.json", frame(0, 0))
	writeRecording(t, dir, "a.json", frame(0, 0))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeRecording(t, filepath.Join(dir, "nested"), "c.json", frame(0, 0))

	got, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, got)
}

func TestInspect(t *testing.T) {
	path := writeRecording(t, t.TempDir(), "r.json", frame(100, 0), frame(150, 1), frame(400, 2))

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Frames)
	assert.Equal(t, 4, info.Leaves)
	assert.Equal(t, 300.0, info.DurationMs)
	assert.Equal(t, "10.0.0.2", info.IP)
	assert.Equal(t, int64(1_700_000_000_000_000_000), info.Received.UnixNano())
}

func TestUnflattenToleratesLongRows(t *testing.T) {
	rec, err := codec.Encode([]record.Value{frame(0, 1), frame(10, 2)})
	require.NoError(t, err)
	rec.FlattenedData[1] = append(rec.FlattenedData[1], 99, 98)

	frames, err := Unflatten(rec)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.True(t, record.Equal(frame(10, 2), frames[1]))

	rec.FlattenedData[0] = rec.FlattenedData[0][:2]
	_, err = Unflatten(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0")
}

func TestResampleAt90Hz(t *testing.T) {
	rec, err := codec.Encode([]record.Value{frame(0, 0), frame(100, 10), frame(200, 30)})
	require.NoError(t, err)

	out, err := Resample(rec, DefaultFrequency)
	require.NoError(t, err)

	times, ok := out.Column("time")
	require.True(t, ok)
	// 0, 11.1, ... 188.9: 18 samples, the last timestamp itself excluded.
	require.Len(t, times, 18)
	assert.InDelta(t, 0, times[0], 1e-9)
	assert.InDelta(t, 1000.0/90, times[1], 1e-9)
	assert.Less(t, times[len(times)-1], 200.0)

	frames, err := Unflatten(out)
	require.NoError(t, err)
	// t = 9 * 11.11 = 100 exactly hits the second frame.
	wrist, _ := frames[9].Get("left_hand_pose")
	wrist, _ = wrist.Get("wrist")
	m, _ := wrist.Get("matrix")
	assert.InDeltaSlice(t, []float64{10, 20, 1}, m.Floats(), 1e-9)

	// t = 144.4 sits in the second segment.
	x := out.FlattenedData[13][0]
	assert.InDelta(t, 10+20*(1000.0/90*13-100)/100, x, 1e-9)
}

func TestResampleSharedTimestamps(t *testing.T) {
	rec, err := codec.Encode([]record.Value{
		frame(0, 0), frame(10, 1), frame(10, 5), frame(20, 6), frame(30, 7),
	})
	require.NoError(t, err)

	out, err := Resample(rec, 200)
	require.NoError(t, err)
	times, _ := out.Column("time")
	assert.Equal(t, []float64{0, 5, 10, 15, 20, 25}, times)

	xs := make([]float64, out.Len())
	for i, row := range out.FlattenedData {
		xs[i] = row[0]
	}
	assert.InDeltaSlice(t, []float64{0, 0.5, 5, 5.5, 6, 6.5}, xs, 1e-9)
}

func TestResampleRejectsBadTime(t *testing.T) {
	rec, err := codec.Encode([]record.Value{frame(0, 0), frame(10, 1), frame(5, 2)})
	require.NoError(t, err)
	_, err = Resample(rec, 90)
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "decreasing at frame 2")

	flat, err := codec.Encode([]record.Value{frame(7, 0), frame(7, 1)})
	require.NoError(t, err)
	_, err = Resample(flat, 90)
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)

	noTime, err := codec.Encode([]record.Value{record.Obj(record.F("x", record.Num(1)))})
	require.NoError(t, err)
	_, err = Resample(noTime, 90)
	assert.ErrorIs(t, err, ErrNoTime)

	_, err = Resample(rec, 0)
	assert.Error(t, err)
}

func TestExportKeepsKeyOrder(t *testing.T) {
	frames := []record.Value{frame(5, 1)}

	var js bytes.Buffer
	require.NoError(t, Export(&js, frames, JSON))
	assert.Less(t, bytes.Index(js.Bytes(), []byte("left_hand_pose")), bytes.Index(js.Bytes(), []byte(`"time"`)))
	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal(js.Bytes(), &raw))
	require.Len(t, raw, 1)
	back, err := record.ReadJSON(bytes.NewReader(raw[0]))
	require.NoError(t, err)
	assert.True(t, record.Equal(frames[0], back))

	var ym bytes.Buffer
	require.NoError(t, Export(&ym, frames, YAML))
	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, 5, decoded[0]["time"])
	assert.Contains(t, ym.String(), "matrix: [1, 2, 1]")
	assert.Less(t, bytes.Index(ym.Bytes(), []byte("left_hand_pose")), bytes.Index(ym.Bytes(), []byte("time:")))

	assert.Error(t, Export(&ym, frames, Format("csv")))
}
