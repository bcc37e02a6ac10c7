package pose

import "math"

// Vec3 is a 3D vector.
type Vec3 [3]float64

// Mat3 is a row-major 3×3 matrix.
type Mat3 [3][3]float64

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Rodrigues converts an axis-angle rotation vector to a rotation matrix.
func Rodrigues(r Vec3) Mat3 {
	theta := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
	if theta < 1e-12 {
		return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	kx, ky, kz := r[0]/theta, r[1]/theta, r[2]/theta
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c

	return Mat3{
		{c + kx*kx*v, kx*ky*v - kz*s, kx*kz*v + ky*s},
		{ky*kx*v + kz*s, c + ky*ky*v, ky*kz*v - kx*s},
		{kz*kx*v - ky*s, kz*ky*v + kx*s, c + kz*kz*v},
	}
}

// Angles are head rotations in degrees. Positive pitch looks down, positive
// yaw turns right, positive roll tilts clockwise.
type Angles struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// EulerAngles decomposes a rotation matrix. Near gimbal lock the reduced
// form is used and roll is reported as 0.
func EulerAngles(r Mat3) Angles {
	sy := math.Sqrt(r[0][0]*r[0][0] + r[1][0]*r[1][0])
	if sy < 1e-6 {
		return Angles{
			Pitch: degrees(math.Atan2(-r[2][0], sy)),
			Yaw:   degrees(math.Atan2(-r[0][1], r[1][1])),
			Roll:  0,
		}
	}
	return Angles{
		Pitch: degrees(math.Atan2(-r[2][0], sy)),
		Yaw:   degrees(math.Atan2(r[1][0], r[0][0])),
		Roll:  degrees(math.Atan2(r[2][1], r[2][2])),
	}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
