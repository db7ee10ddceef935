package mat4

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap/trip"
)

const eps = 1e-12

func TestMul_Identity(t *testing.T) {
	m := RotationY(0.3).Mul(Translation(Vec3{1, 2, 3}))
	assert.Equal(t, m, Identity().Mul(m))
	assert.Equal(t, m, m.Mul(Identity()))
}

func TestMul_AppliesRightOperandFirst(t *testing.T) {
	m := Translation(Vec3{1, 0, 0}).Mul(Scale(Vec3{2, 2, 2}))

	got := m.Transform(Vec3{1, 1, 1})
	assert.InDelta(t, 3.0, got.X, eps)
	assert.InDelta(t, 2.0, got.Y, eps)
}

func TestInverse(t *testing.T) {
	m := Translation(Vec3{0.1, -0.2, 0.5}).Mul(RotationY(1.1)).Mul(Scale(Vec3{1, 2, 0.5}))

	inv, err := m.Inverse()
	require.NoError(t, err)
	assert.True(t, m.Mul(inv).ApproxEqual(Identity(), 1e-9))
	assert.True(t, inv.Mul(m).ApproxEqual(Identity(), 1e-9))
}

func TestInverse_Singular(t *testing.T) {
	_, err := Scale(Vec3{1, 0, 1}).Inverse()
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
}

func TestFromSlice(t *testing.T) {
	m, err := FromSlice(Identity().Slice())
	require.NoError(t, err)
	assert.Equal(t, Identity(), m)

	_, err = FromSlice([]float64{1, 2, 3})
	assert.ErrorIs(t, err, trip.ErrSchemaMismatch)
}

func TestDecompose(t *testing.T) {
	m := Translation(Vec3{1, 2, 3}).Mul(RotationY(math.Pi / 2))

	pos, q, scale := m.Decompose()
	assert.Equal(t, Vec3{1, 2, 3}, pos)
	assert.InDelta(t, 1.0, scale.X, eps)
	assert.InDelta(t, 1.0, scale.Y, eps)
	assert.InDelta(t, 1.0, scale.Z, eps)

	half := math.Sqrt(0.5)
	assert.InDelta(t, 0.0, q.X, eps)
	assert.InDelta(t, half, q.Y, eps)
	assert.InDelta(t, 0.0, q.Z, eps)
	assert.InDelta(t, half, q.W, eps)
}

func TestVec3_Distance(t *testing.T) {
	assert.InDelta(t, 5.0, Vec3{0, 3, 0}.Distance(Vec3{4, 0, 0}), eps)
	assert.InDelta(t, 0.0, Vec3{1, 1, 1}.Distance(Vec3{1, 1, 1}), eps)
}
