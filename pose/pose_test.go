package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

type fakeHand struct {
	names  []string
	joints map[string]mat4.Matrix
}

func (h *fakeHand) JointNames() []string { return h.names }

func (h *fakeHand) JointMatrix(name string) (mat4.Matrix, bool) {
	m, ok := h.joints[name]
	return m, ok
}

func (h *fakeHand) SetJointMatrix(name string, m mat4.Matrix) { h.joints[name] = m }

func newHand(names ...string) *fakeHand {
	h := &fakeHand{names: names, joints: map[string]mat4.Matrix{}}
	for i, n := range names {
		h.joints[n] = mat4.Translation(mat4.Vec3{X: float64(i), Y: 1, Z: -0.5})
	}
	return h
}

type fixed mat4.Matrix

func (f fixed) Matrix() mat4.Matrix { return mat4.Matrix(f) }

func TestSerializeJoints(t *testing.T) {
	hand := newHand("wrist", "thumb-tip", "index-finger-tip")
	delete(hand.joints, "thumb-tip")

	out := SerializeJoints(hand)
	assert.Equal(t, []string{"wrist", "index-finger-tip"}, out.Keys(), "dropped joints are skipped")

	m, ok, err := JointMatrix(out, "index-finger-tip")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hand.joints["index-finger-tip"], m)
}

func TestSerializeJoints_NilHand(t *testing.T) {
	out := SerializeJoints(nil)
	assert.Equal(t, record.Object, out.Kind())
	assert.Equal(t, 0, out.Len())
}

func TestSerializeWrist(t *testing.T) {
	out := SerializeWrist(newHand("wrist", "thumb-tip"))
	assert.Equal(t, []string{"wrist"}, out.Keys())

	assert.Equal(t, 0, SerializeWrist(newHand("thumb-tip")).Len())
	assert.Equal(t, 0, SerializeWrist(nil).Len())
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot(newHand("wrist"), nil, fixed(mat4.Identity()), 1500)

	assert.Equal(t, []string{LeftHandKey, RightHandKey, HeadKey, TimeKey}, snap.Keys())
	ts, err := TimeOf(snap)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, ts)
	assert.Equal(t, 16+16+1, snap.Leaves())
}

func TestApplySerializedJoints_MaskAndPartial(t *testing.T) {
	src := newHand("wrist", "thumb-tip", "index-finger-tip")
	stored := SerializeJoints(src)
	stored.Delete("index-finger-tip")

	dst := &fakeHand{
		names:  []string{"wrist", "thumb-tip", "index-finger-tip"},
		joints: map[string]mat4.Matrix{},
	}
	untouched := mat4.Scale(mat4.Vec3{X: 2, Y: 2, Z: 2})
	dst.joints["wrist"] = untouched
	dst.joints["index-finger-tip"] = untouched

	require.NoError(t, ApplySerializedJoints(dst, stored, "wrist"))

	assert.Equal(t, untouched, dst.joints["wrist"], "masked joint keeps its pose")
	assert.Equal(t, untouched, dst.joints["index-finger-tip"], "absent joint keeps its pose")
	assert.Equal(t, src.joints["thumb-tip"], dst.joints["thumb-tip"])
}

func TestApplySerializedJoints_BadMatrix(t *testing.T) {
	stored := record.Obj(record.F("wrist", record.Obj(record.F("matrix", record.Nums(1, 2)))))
	err := ApplySerializedJoints(newHand("wrist"), stored)
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
}

func TestReplaceGesture(t *testing.T) {
	srcHand := newHand("wrist", "index-finger-tip")
	srcHand.joints["wrist"] = mat4.Translation(mat4.Vec3{X: 1})
	srcHand.joints["index-finger-tip"] = mat4.Translation(mat4.Vec3{X: 1, Y: 0.1})

	dstHand := newHand("wrist", "index-finger-tip")
	dstHand.joints["wrist"] = mat4.Translation(mat4.Vec3{Z: 5})
	dstHand.joints["index-finger-tip"] = mat4.Translation(mat4.Vec3{Z: 9})

	source := Snapshot(srcHand, nil, nil, 0)
	target := Snapshot(dstHand, nil, nil, 10)
	targetBefore := target.Clone()

	out, err := ReplaceGesture(source, target)
	require.NoError(t, err)

	left, _ := out.Get(LeftHandKey)
	tip, ok, err := JointMatrix(left, "index-finger-tip")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, tip.ApproxEqual(mat4.Translation(mat4.Vec3{Y: 0.1, Z: 5}), 1e-12), "got %v", tip)

	wrist, _, _ := JointMatrix(left, Wrist)
	assert.Equal(t, dstHand.joints["wrist"], wrist, "wrist stays at target")

	assert.True(t, record.Equal(targetBefore, target), "target must not be mutated")
	right, _ := out.Get(RightHandKey)
	assert.Equal(t, 0, right.Len())
}

func TestReplaceGesture_NoWrist(t *testing.T) {
	source := Snapshot(newHand("thumb-tip"), nil, nil, 0)
	target := Snapshot(newHand("wrist", "thumb-tip"), nil, nil, 0)

	out, err := ReplaceGesture(source, target)
	require.NoError(t, err)
	assert.True(t, record.Equal(target, out))
}

func TestPositionQuaternion(t *testing.T) {
	pq, err := PositionQuaternion(mat4.Translation(mat4.Vec3{X: 1, Y: 2, Z: 3}).Slice())
	require.NoError(t, err)
	assert.Equal(t, [7]float64{1, 2, 3, 0, 0, 0, 1}, pq)
}

func TestSnapshotPositionQuaternion(t *testing.T) {
	head := fixed(mat4.Translation(mat4.Vec3{Y: 1.6}).Mul(mat4.RotationY(math.Pi / 2)))
	snap := Snapshot(newHand("wrist", "index-finger-tip"), nil, head, 1234)

	out, err := SnapshotPositionQuaternion(snap)
	require.NoError(t, err)
	assert.Equal(t, snap.Keys(), out.Keys())

	left, _ := out.Get(LeftHandKey)
	assert.Equal(t, []string{"wrist", "index-finger-tip"}, left.Keys())
	tip, _ := left.Get("index-finger-tip")
	assert.Equal(t, []string{PositionKey, QuaternionKey}, tip.Keys())
	pos, _ := tip.Get(PositionKey)
	assert.Equal(t, []float64{1, 1, -0.5}, pos.Floats())
	quat, _ := tip.Get(QuaternionKey)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 1}, quat.Floats(), 1e-12)

	right, _ := out.Get(RightHandKey)
	assert.Equal(t, 0, right.Len())

	headPQ, _ := out.Get(HeadKey)
	hp, _ := headPQ.Get(PositionKey)
	assert.InDeltaSlice(t, []float64{0, 1.6, 0}, hp.Floats(), 1e-12)
	hq, _ := headPQ.Get(QuaternionKey)
	half := math.Sqrt(0.5)
	assert.InDeltaSlice(t, []float64{0, half, 0, half}, hq.Floats(), 1e-9)

	ts, err := TimeOf(out)
	require.NoError(t, err)
	assert.Equal(t, 1234.0, ts)

	orig, _ := snap.Get(LeftHandKey)
	wrist, _ := orig.Get(Wrist)
	_, hasMatrix := wrist.Get(MatrixKey)
	assert.True(t, hasMatrix, "input must stay untouched")
}

func TestSnapshotPositionQuaternion_BadMatrix(t *testing.T) {
	snap := record.Obj(
		record.F(LeftHandKey, record.Obj(record.F(Wrist, record.Obj(record.F(MatrixKey, record.Nums(1, 2, 3)))))),
	)
	_, err := SnapshotPositionQuaternion(snap)
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "left_hand_pose/wrist")
}

func TestLocators(t *testing.T) {
	hand := newHand("wrist", "index-finger-tip")
	loc := JointLocator{Hand: func() HandSource { return hand }, Joint: "index-finger-tip"}
	p, ok := loc.WorldPosition()
	require.True(t, ok)
	assert.Equal(t, mat4.Vec3{X: 1, Y: 1, Z: -0.5}, p)

	missing := JointLocator{Hand: func() HandSource { return nil }, Joint: "wrist"}
	_, ok = missing.WorldPosition()
	assert.False(t, ok)

	off := Offset{Base: fixed(mat4.Translation(mat4.Vec3{Y: 1.6})), Delta: mat4.Vec3{X: 0.05, Y: -0.1, Z: -0.5}}
	p, ok = off.WorldPosition()
	require.True(t, ok)
	assert.InDelta(t, 1.5, p.Y, 1e-12)
	assert.InDelta(t, -0.5, p.Z, 1e-12)
}
