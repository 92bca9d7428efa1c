package scene

import "math"

// Vec3 is a 3D vector in host units
type Vec3 [3]float64

// Add returns v + o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v * f
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v[0] * f, v[1] * f, v[2] * f}
}

// Mul returns the component-wise product
func (v Vec3) Mul(o Vec3) Vec3 {
	return Vec3{v[0] * o[0], v[1] * o[1], v[2] * o[2]}
}

// Dot returns the dot product
func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Len returns the euclidean length
func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns the unit vector; the zero vector stays zero
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// ApproxEqual compares two vectors with an absolute tolerance
func (v Vec3) ApproxEqual(o Vec3, eps float64) bool {
	for i := range v {
		if math.Abs(v[i]-o[i]) > eps {
			return false
		}
	}
	return true
}

// Mat3 is a row-major 3x3 rotation matrix
type Mat3 [3][3]float64

// MulVec returns m * v
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Mul returns m * o
func (m Mat3) Mul(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				r[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return r
}

func rotX(rad float64) Mat3 {
	s, c := math.Sincos(rad)
	return Mat3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func rotY(rad float64) Mat3 {
	s, c := math.Sincos(rad)
	return Mat3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func rotZ(rad float64) Mat3 {
	s, c := math.Sincos(rad)
	return Mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// EulerMatrix converts XYZ euler angles in degrees to a rotation matrix.
// X is applied first, Z last.
func EulerMatrix(deg Vec3) Mat3 {
	return rotZ(radians(deg[2])).Mul(rotY(radians(deg[1]))).Mul(rotX(radians(deg[0])))
}

// MatrixEuler converts a rotation matrix back to XYZ euler angles in degrees
func MatrixEuler(m Mat3) Vec3 {
	sy := -m[2][0]
	if sy > 1 {
		sy = 1
	} else if sy < -1 {
		sy = -1
	}
	y := math.Asin(sy)

	var x, z float64
	if math.Abs(math.Cos(y)) > 1e-9 {
		x = math.Atan2(m[2][1], m[2][2])
		z = math.Atan2(m[1][0], m[0][0])
	} else {
		// gimbal lock: fold the whole yaw into X
		x = math.Atan2(-m[1][2], m[1][1])
		z = 0
	}
	return Vec3{degrees(x), degrees(y), degrees(z)}
}

// RotateLocal applies a relative rotation around the object's local Z, then
// Y, then X axes and returns the resulting euler angles in degrees.
func RotateLocal(current, delta Vec3) Vec3 {
	m := EulerMatrix(current).
		Mul(rotZ(radians(delta[2]))).
		Mul(rotY(radians(delta[1]))).
		Mul(rotX(radians(delta[0])))
	return MatrixEuler(m)
}

// NormalToEuler returns euler angles (degrees) that turn +Z onto the normal
func NormalToEuler(normal Vec3) Vec3 {
	n := normal.Normalize()
	return Vec3{
		degrees(-math.Asin(clamp(n[1], -1, 1))),
		degrees(math.Atan2(n[0], n[2])),
		0,
	}
}

// Forward returns the viewing direction of a camera with the given euler
// rotation. An unrotated camera looks down -Z.
func Forward(rotation Vec3) Vec3 {
	return EulerMatrix(rotation).MulVec(Vec3{0, 0, -1})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Lerp interpolates between a and b
func Lerp(a, b, alpha float64) float64 {
	return a*(1-alpha) + b*alpha
}
