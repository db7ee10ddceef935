// Package mat4 holds the 4x4 transform algebra used for wrist-relative
// gesture transplant. Matrices are column-major, matching the 16-element
// arrays stored in pose snapshots.
package mat4

import (
	"math"

	"github.com/teranos/handcap/trip"
)

// Matrix is a column-major 4x4 matrix. Element (row r, column c) is m[c*4+r].
type Matrix [16]float64

// Vec3 is a point or direction in world space.
type Vec3 struct{ X, Y, Z float64 }

// Quat is a unit rotation quaternion.
type Quat struct{ X, Y, Z, W float64 }

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation matrix.
func Translation(v Vec3) Matrix {
	m := Identity()
	m[12], m[13], m[14] = v.X, v.Y, v.Z
	return m
}

// Scale returns a pure scale matrix.
func Scale(v Vec3) Matrix {
	m := Identity()
	m[0], m[5], m[10] = v.X, v.Y, v.Z
	return m
}

// RotationY returns a rotation of rad radians around the Y axis.
func RotationY(rad float64) Matrix {
	c, s := math.Cos(rad), math.Sin(rad)
	m := Identity()
	m[0], m[2] = c, -s
	m[8], m[10] = s, c
	return m
}

// FromSlice copies a 16-element slice into a Matrix.
func FromSlice(s []float64) (Matrix, error) {
	var m Matrix
	if len(s) != 16 {
		return m, trip.Schemaf("matrix has %d elements, want 16", len(s))
	}
	copy(m[:], s)
	return m, nil
}

// Slice returns the elements as a new slice.
func (m Matrix) Slice() []float64 {
	out := make([]float64, 16)
	copy(out, m[:])
	return out
}

// At returns element (row, col).
func (m Matrix) At(row, col int) float64 { return m[col*4+row] }

// Mul returns m * n. Applied to a point, n acts first.
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Determinant returns det(m).
func (m Matrix) Determinant() float64 {
	_, det := m.adjugate()
	return det
}

// Inverse returns m^-1. A singular matrix fails with SchemaMismatch, since a
// joint transform with no inverse cannot come from a tracked pose.
func (m Matrix) Inverse() (Matrix, error) {
	adj, det := m.adjugate()
	if det == 0 || math.IsNaN(det) {
		return Matrix{}, trip.Schemaf("matrix is singular")
	}
	inv := 1 / det
	for i := range adj {
		adj[i] *= inv
	}
	return adj, nil
}

// adjugate returns the adjugate and the determinant, cofactor expansion over
// 2x2 sub-determinants.
func (m Matrix) adjugate() (Matrix, float64) {
	a00, a01, a02, a03 := m[0], m[1], m[2], m[3]
	a10, a11, a12, a13 := m[4], m[5], m[6], m[7]
	a20, a21, a22, a23 := m[8], m[9], m[10], m[11]
	a30, a31, a32, a33 := m[12], m[13], m[14], m[15]

	b00 := a00*a11 - a01*a10
	b01 := a00*a12 - a02*a10
	b02 := a00*a13 - a03*a10
	b03 := a01*a12 - a02*a11
	b04 := a01*a13 - a03*a11
	b05 := a02*a13 - a03*a12
	b06 := a20*a31 - a21*a30
	b07 := a20*a32 - a22*a30
	b08 := a20*a33 - a23*a30
	b09 := a21*a32 - a22*a31
	b10 := a21*a33 - a23*a31
	b11 := a22*a33 - a23*a32

	det := b00*b11 - b01*b10 + b02*b09 + b03*b08 - b04*b07 + b05*b06

	return Matrix{
		a11*b11 - a12*b10 + a13*b09,
		a02*b10 - a01*b11 - a03*b09,
		a31*b05 - a32*b04 + a33*b03,
		a22*b04 - a21*b05 - a23*b03,
		a12*b08 - a10*b11 - a13*b07,
		a00*b11 - a02*b08 + a03*b07,
		a32*b02 - a30*b05 - a33*b01,
		a20*b05 - a22*b02 + a23*b01,
		a10*b10 - a11*b08 + a13*b06,
		a01*b08 - a00*b10 - a03*b06,
		a30*b04 - a31*b02 + a33*b00,
		a21*b02 - a20*b04 - a23*b00,
		a11*b07 - a10*b09 - a12*b06,
		a00*b09 - a01*b07 + a02*b06,
		a31*b01 - a30*b03 - a32*b00,
		a20*b03 - a21*b01 + a22*b00,
	}, det
}

// Position returns the translation column.
func (m Matrix) Position() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// Transform applies m to point v.
func (m Matrix) Transform(v Vec3) Vec3 {
	w := m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]
	if w == 0 {
		w = 1
	}
	return Vec3{
		(m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]) / w,
		(m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]) / w,
		(m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]) / w,
	}
}

// Decompose splits an affine transform into position, rotation and scale.
func (m Matrix) Decompose() (Vec3, Quat, Vec3) {
	sx := Vec3{m[0], m[1], m[2]}.Length()
	sy := Vec3{m[4], m[5], m[6]}.Length()
	sz := Vec3{m[8], m[9], m[10]}.Length()
	if m.Determinant() < 0 {
		sx = -sx
	}

	pos := m.Position()
	if sx == 0 || sy == 0 || sz == 0 {
		return pos, Quat{W: 1}, Vec3{sx, sy, sz}
	}

	r00, r10, r20 := m[0]/sx, m[1]/sx, m[2]/sx
	r01, r11, r21 := m[4]/sy, m[5]/sy, m[6]/sy
	r02, r12, r22 := m[8]/sz, m[9]/sz, m[10]/sz

	var q Quat
	trace := r00 + r11 + r22
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = Quat{(r21 - r12) * s, (r02 - r20) * s, (r10 - r01) * s, 0.25 / s}
	case r00 > r11 && r00 > r22:
		s := 2 * math.Sqrt(1+r00-r11-r22)
		q = Quat{0.25 * s, (r01 + r10) / s, (r02 + r20) / s, (r21 - r12) / s}
	case r11 > r22:
		s := 2 * math.Sqrt(1+r11-r00-r22)
		q = Quat{(r01 + r10) / s, 0.25 * s, (r12 + r21) / s, (r02 - r20) / s}
	default:
		s := 2 * math.Sqrt(1+r22-r00-r11)
		q = Quat{(r02 + r20) / s, (r12 + r21) / s, 0.25 * s, (r10 - r01) / s}
	}
	return pos, q, Vec3{sx, sy, sz}
}

// ApproxEqual reports whether every element of m and n differs by at most eps.
func (m Matrix) ApproxEqual(n Matrix, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-n[i]) > eps {
			return false
		}
	}
	return true
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Length returns |v|.
func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Distance returns |v - w|.
func (v Vec3) Distance(w Vec3) float64 { return v.Sub(w).Length() }
