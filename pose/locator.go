package pose

import "github.com/teranos/handcap/mat4"

// Point is a fixed Locator.
type Point mat4.Vec3

// WorldPosition implements Locator.
func (p Point) WorldPosition() (mat4.Vec3, bool) { return mat4.Vec3(p), true }

// JointLocator follows one joint of a tracked hand.
type JointLocator struct {
	Hand  func() HandSource
	Joint string
}

// WorldPosition implements Locator. It reports false while the hand or the
// joint is missing.
func (j JointLocator) WorldPosition() (mat4.Vec3, bool) {
	if j.Hand == nil {
		return mat4.Vec3{}, false
	}
	hand := j.Hand()
	if hand == nil {
		return mat4.Vec3{}, false
	}
	m, ok := hand.JointMatrix(j.Joint)
	if !ok {
		return mat4.Vec3{}, false
	}
	return m.Position(), true
}

// Offset places a point at a fixed local offset from a transform, like a
// button spawned in front of the head.
type Offset struct {
	Base  Transform
	Delta mat4.Vec3
}

// WorldPosition implements Locator.
func (o Offset) WorldPosition() (mat4.Vec3, bool) {
	if o.Base == nil {
		return o.Delta, true
	}
	return o.Base.Matrix().Transform(o.Delta), true
}

// Freeze evaluates l once and returns a fixed Point.
func Freeze(l Locator) (Point, bool) {
	v, ok := l.WorldPosition()
	return Point(v), ok
}
