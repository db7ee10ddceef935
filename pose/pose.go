// Package pose turns live hand joint transforms into plain snapshot records
// and writes stored snapshots back onto display skeletons.
package pose

import (
	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

// Snapshot keys.
const (
	LeftHandKey  = "left_hand_pose"
	RightHandKey = "right_hand_pose"
	HeadKey      = "head_pose"
	TimeKey      = "time"
	MatrixKey    = "matrix"
	Wrist        = "wrist"
)

// XRJointNames lists the tracked joints of one hand in device order.
var XRJointNames = []string{
	"wrist",
	"thumb-metacarpal", "thumb-phalanx-proximal", "thumb-phalanx-distal", "thumb-tip",
	"index-finger-metacarpal", "index-finger-phalanx-proximal", "index-finger-phalanx-intermediate", "index-finger-phalanx-distal", "index-finger-tip",
	"middle-finger-metacarpal", "middle-finger-phalanx-proximal", "middle-finger-phalanx-intermediate", "middle-finger-phalanx-distal", "middle-finger-tip",
	"ring-finger-metacarpal", "ring-finger-phalanx-proximal", "ring-finger-phalanx-intermediate", "ring-finger-phalanx-distal", "ring-finger-tip",
	"pinky-finger-metacarpal", "pinky-finger-phalanx-proximal", "pinky-finger-phalanx-intermediate", "pinky-finger-phalanx-distal", "pinky-finger-tip",
}

// HandSource exposes the current joint transforms of one tracked hand.
// JointMatrix reports false for joints the device dropped this frame.
type HandSource interface {
	JointNames() []string
	JointMatrix(name string) (mat4.Matrix, bool)
}

// Hands exposes the currently tracked hands. Either may be nil.
type Hands interface {
	Left() HandSource
	Right() HandSource
}

// Transform exposes a single world transform, such as the head camera.
type Transform interface {
	Matrix() mat4.Matrix
}

// Skeleton is a display proxy whose joints can be posed.
type Skeleton interface {
	JointNames() []string
	SetJointMatrix(name string, m mat4.Matrix)
}

// Locator exposes a point in world space. It reports false while the point
// is not tracked.
type Locator interface {
	WorldPosition() (mat4.Vec3, bool)
}

func matrixRecord(m mat4.Matrix) record.Value {
	return record.Obj(record.F(MatrixKey, record.Nums(m[:]...)))
}

// SerializeJoints snapshots every joint hand currently reports. A nil hand
// yields an empty object; missing joints are skipped.
func SerializeJoints(hand HandSource) record.Value {
	out := record.Obj()
	if hand == nil {
		return out
	}
	for _, name := range hand.JointNames() {
		m, ok := hand.JointMatrix(name)
		if !ok {
			continue
		}
		out.Set(name, matrixRecord(m))
	}
	return out
}

// SerializeWrist snapshots only the wrist, or returns an empty object when
// the wrist is not tracked.
func SerializeWrist(hand HandSource) record.Value {
	out := record.Obj()
	if hand == nil {
		return out
	}
	if m, ok := hand.JointMatrix(Wrist); ok {
		out.Set(Wrist, matrixRecord(m))
	}
	return out
}

// SerializeTransform snapshots a single transform as {matrix}.
func SerializeTransform(t Transform) record.Value {
	if t == nil {
		return matrixRecord(mat4.Identity())
	}
	return matrixRecord(t.Matrix())
}

// Snapshot captures both hands and the head at timeMs.
func Snapshot(left, right HandSource, head Transform, timeMs int64) record.Value {
	return record.Obj(
		record.F(LeftHandKey, SerializeJoints(left)),
		record.F(RightHandKey, SerializeJoints(right)),
		record.F(HeadKey, SerializeTransform(head)),
		record.F(TimeKey, record.Num(float64(timeMs))),
	)
}

// WristSnapshot captures only the wrists plus time, for gesture templates.
func WristSnapshot(left, right HandSource, timeMs int64) record.Value {
	return record.Obj(
		record.F(LeftHandKey, SerializeWrist(left)),
		record.F(RightHandKey, SerializeWrist(right)),
		record.F(TimeKey, record.Num(float64(timeMs))),
	)
}

// TimeOf returns the time field of a snapshot in milliseconds.
func TimeOf(snapshot record.Value) (float64, error) {
	v, ok := snapshot.Get(TimeKey)
	if !ok || v.Kind() != record.Number {
		return 0, trip.Schemaf("snapshot has no numeric %q", TimeKey)
	}
	return v.Float(), nil
}

// JointMatrix reads the matrix of a serialized joint entry.
func JointMatrix(joints record.Value, name string) (mat4.Matrix, bool, error) {
	entry, ok := joints.Get(name)
	if !ok {
		return mat4.Matrix{}, false, nil
	}
	raw, ok := entry.Get(MatrixKey)
	if !ok || raw.Kind() != record.Array {
		return mat4.Matrix{}, false, trip.Schemaf("joint %q has no matrix array", name)
	}
	m, err := mat4.FromSlice(raw.Floats())
	if err != nil {
		return mat4.Matrix{}, false, err
	}
	return m, true, nil
}

// ApplySerializedJoints poses dst from joints. Joints named in mask, and
// joints absent from the record, keep whatever pose they had.
func ApplySerializedJoints(dst Skeleton, joints record.Value, mask ...string) error {
	masked := make(map[string]struct{}, len(mask))
	for _, name := range mask {
		masked[name] = struct{}{}
	}
	for _, name := range dst.JointNames() {
		if _, skip := masked[name]; skip {
			continue
		}
		m, ok, err := JointMatrix(joints, name)
		if err != nil {
			return err
		}
		if ok {
			dst.SetJointMatrix(name, m)
		}
	}
	return nil
}

// ReplaceGesture moves the finger shape of source onto the wrists of target.
// Every non-wrist joint j of a hand becomes j_source * inv(wrist_source) *
// wrist_target. Hands that lack a wrist on either side are copied from target
// unchanged. Neither input is modified.
func ReplaceGesture(source, target record.Value) (record.Value, error) {
	result := target.Clone()
	for _, hand := range []string{LeftHandKey, RightHandKey} {
		srcHand, _ := source.Get(hand)
		dstHand, _ := target.Get(hand)

		srcWrist, ok, err := JointMatrix(srcHand, Wrist)
		if err != nil {
			return record.Value{}, err
		}
		if !ok {
			continue
		}
		dstWrist, ok, err := JointMatrix(dstHand, Wrist)
		if err != nil {
			return record.Value{}, err
		}
		if !ok {
			continue
		}
		srcWristInv, err := srcWrist.Inverse()
		if err != nil {
			return record.Value{}, err
		}

		out := dstHand.Clone()
		for _, name := range srcHand.Keys() {
			if name == Wrist {
				continue
			}
			j, _, err := JointMatrix(srcHand, name)
			if err != nil {
				return record.Value{}, err
			}
			out.Set(name, matrixRecord(j.Mul(srcWristInv).Mul(dstWrist)))
		}
		result.Set(hand, out)
	}
	return result, nil
}

// PositionQuaternion reduces a 16-element transform to
// [x, y, z, qx, qy, qz, qw].
func PositionQuaternion(matrix []float64) ([7]float64, error) {
	m, err := mat4.FromSlice(matrix)
	if err != nil {
		return [7]float64{}, err
	}
	p, q, _ := m.Decompose()
	return [7]float64{p.X, p.Y, p.Z, q.X, q.Y, q.Z, q.W}, nil
}

// Keys of a converted transform.
const (
	PositionKey   = "position"
	QuaternionKey = "quaternion"
)

// SnapshotPositionQuaternion converts every matrix of a snapshot: each joint
// of both hands and the head become {position: [x, y, z], quaternion:
// [x, y, z, w]}. Other fields are copied. The input is not modified.
func SnapshotPositionQuaternion(snapshot record.Value) (record.Value, error) {
	out := snapshot.Clone()
	for _, hand := range []string{LeftHandKey, RightHandKey} {
		joints, ok := snapshot.Get(hand)
		if !ok {
			continue
		}
		converted := record.Obj()
		for _, name := range joints.Keys() {
			entry, _ := joints.Get(name)
			pq, err := transformRecord(entry)
			if err != nil {
				return record.Value{}, trip.Schemaf("%s/%s: %v", hand, name, err)
			}
			converted.Set(name, pq)
		}
		out.Set(hand, converted)
	}
	if head, ok := snapshot.Get(HeadKey); ok {
		pq, err := transformRecord(head)
		if err != nil {
			return record.Value{}, trip.Schemaf("%s: %v", HeadKey, err)
		}
		out.Set(HeadKey, pq)
	}
	return out, nil
}

func transformRecord(entry record.Value) (record.Value, error) {
	raw, ok := entry.Get(MatrixKey)
	if !ok || raw.Kind() != record.Array {
		return record.Value{}, trip.Schemaf("no matrix array")
	}
	pq, err := PositionQuaternion(raw.Floats())
	if err != nil {
		return record.Value{}, err
	}
	return record.Obj(
		record.F(PositionKey, record.Nums(pq[0], pq[1], pq[2])),
		record.F(QuaternionKey, record.Nums(pq[3], pq[4], pq[5], pq[6])),
	), nil
}
