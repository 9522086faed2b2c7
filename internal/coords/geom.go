package coords

import "github.com/chewxy/math32"

type Vec2 [2]float32

type Vec3 [3]float32

// Mat4 is a row-major 4x4 matrix. Points are row vectors (p' = p × M), so the
// translation lives in elements 12..14.
type Mat4 [16]float32

func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation matrix.
func Translation(v Vec3) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = v[0], v[1], v[2]
	return m
}

// RotationX returns a rotation of deg degrees about the X axis.
func RotationX(deg float32) Mat4 {
	s, c := math32.Sincos(DegToRad(deg))
	return Mat4{
		1, 0, 0, 0,
		0, c, s, 0,
		0, -s, c, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m × o. With row vectors, m is applied first.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[r*4+k] * o[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = m[r*4+c]
		}
	}
	return out
}

func (m Mat4) TransformPoint(p Vec3) Vec3 {
	var out Vec3
	for c := 0; c < 3; c++ {
		out[c] = p[0]*m[c] + p[1]*m[4+c] + p[2]*m[8+c] + m[12+c]
	}
	return out
}

// Origin returns the translation part of m.
func (m Mat4) Origin() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// Rotator is an orientation in degrees.
type Rotator struct {
	Pitch float32
	Yaw   float32
	Roll  float32
}

// DirectionRotator returns the rotator that points the forward (+X) axis
// along dir. Roll is always zero.
func DirectionRotator(dir Vec3) Rotator {
	yaw := math32.Atan2(dir[1], dir[0])
	pitch := math32.Atan2(dir[2], math32.Sqrt(dir[0]*dir[0]+dir[1]*dir[1]))
	return Rotator{Pitch: RadToDeg(pitch), Yaw: RadToDeg(yaw)}
}

func DegToRad(deg float32) float32 {
	return deg * math32.Pi / 180
}

func RadToDeg(rad float32) float32 {
	return rad * 180 / math32.Pi
}
