package synth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/trip"
)

func TestHand_ServesEveryXRJoint(t *testing.T) {
	clock := frame.NewManualClock(time.Unix(0, 0))
	h := NewHand(false, clock)

	for _, name := range pose.XRJointNames {
		_, ok := h.JointMatrix(name)
		assert.True(t, ok, name)
	}
	_, ok := h.JointMatrix("sixth-finger-tip")
	assert.False(t, ok)

	h.Drop("thumb-tip")
	snap := pose.SerializeJoints(h)
	assert.Equal(t, len(pose.XRJointNames)-1, snap.Len())
	h.Restore()
	assert.Equal(t, len(pose.XRJointNames), pose.SerializeJoints(h).Len())
}

func TestHand_WristAtOrigin(t *testing.T) {
	h := NewHand(true, nil)
	h.SetOrigin(mat4.Vec3{X: 1, Y: 2, Z: 3})
	m, ok := h.JointMatrix(pose.Wrist)
	require.True(t, ok)
	assert.Equal(t, mat4.Vec3{X: 1, Y: 2, Z: 3}, m.Position())
}

func TestHands_Tracking(t *testing.T) {
	hands := NewHands(nil)
	assert.NotNil(t, hands.Left())
	hands.SetTracked(false)
	assert.Nil(t, hands.Left())
	assert.Nil(t, hands.Right())
	assert.NotNil(t, hands.LeftHand())
}

func TestReach_BringsFingertipToTarget(t *testing.T) {
	clock := frame.NewManualClock(time.Unix(0, 0))
	s := frame.NewScheduler()
	hand := NewHand(false, clock)
	target := pose.Point{X: 0.05, Y: 1.5, Z: -0.5}
	Reach(s, clock, hand, target, 1.0)

	tip := pose.JointLocator{Hand: func() pose.HandSource { return hand }, Joint: "index-finger-tip"}
	frame.Step(s, clock, 100, 20*time.Millisecond)

	p, ok := tip.WorldPosition()
	require.True(t, ok)
	assert.Less(t, p.Distance(mat4.Vec3(target)), 0.01)
}

func TestDevices_DeclinesThenGrants(t *testing.T) {
	d := NewDevices()
	d.Declines = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := d.RequestSession(ctx)
		assert.ErrorIs(t, err, trip.ErrUserDeclined)
	}
	s, err := d.RequestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Requests())
	assert.Same(t, s, d.Current())

	require.NoError(t, s.End())
	require.NoError(t, s.End())
	select {
	case <-s.Ended():
	default:
		t.Fatal("session should be ended")
	}
}

func TestClicker(t *testing.T) {
	c := NewClicker()
	c.Press()
	require.NoError(t, c.Click(context.Background()))
	n, _ := c.Waits()
	assert.Equal(t, 1, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Click(ctx), context.Canceled)

	auto := NewAutoClicker(time.Millisecond)
	assert.NoError(t, auto.Click(context.Background()))
}

func TestPreloader(t *testing.T) {
	p := &Preloader{}
	require.NoError(t, p.Preload(context.Background(), "font.woff"))
	assert.Equal(t, []string{"font.woff"}, p.Loaded())
}

func TestDummy(t *testing.T) {
	d := NewDummy()
	assert.False(t, d.Visible())
	assert.Equal(t, pose.XRJointNames, d.JointNames())

	d.SetVisible(true)
	d.SetJointMatrix("wrist", mat4.Translation(mat4.Vec3{X: 1}))
	d.SetJointMatrix("thumb-tip", mat4.Identity())
	d.SetJointMatrix("wrist", mat4.Translation(mat4.Vec3{X: 2}))

	assert.True(t, d.Visible())
	assert.Equal(t, 2, d.Poses())
	m, ok := d.Joint("wrist")
	require.True(t, ok)
	assert.Equal(t, 2.0, m.Position().X)
	_, ok = d.Joint("pinky-finger-tip")
	assert.False(t, ok)
}
