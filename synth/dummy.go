package synth

import (
	"sync"

	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/pose"
)

// Dummy is a display hand for playback. It keeps the last pose written to
// each joint and counts the wrist updates.
type Dummy struct {
	mu      sync.Mutex
	joints  map[string]mat4.Matrix
	visible bool
	poses   int
}

// NewDummy returns a hidden dummy with no joints posed.
func NewDummy() *Dummy {
	return &Dummy{joints: map[string]mat4.Matrix{}}
}

// JointNames implements pose.Skeleton.
func (d *Dummy) JointNames() []string { return pose.XRJointNames }

// SetJointMatrix implements pose.Skeleton.
func (d *Dummy) SetJointMatrix(name string, m mat4.Matrix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.joints[name] = m
	if name == pose.Wrist {
		d.poses++
	}
}

// SetVisible implements capture.Dummy.
func (d *Dummy) SetVisible(v bool) {
	d.mu.Lock()
	d.visible = v
	d.mu.Unlock()
}

// Visible reports whether the dummy is shown.
func (d *Dummy) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

// Joint returns the last pose of a joint.
func (d *Dummy) Joint(name string) (mat4.Matrix, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.joints[name]
	return m, ok
}

// Poses counts how many times the wrist was posed.
func (d *Dummy) Poses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poses
}
