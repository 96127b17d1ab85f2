package emath

// 3x3 matrices and 3-vectors, used for all the color transforms

import(
	"fmt"
	"math"

	"golang.org/x/image/math/f64"  // Will be "image/math/f64" at some point, hopefully make this file redundant
	"gonum.org/v1/gonum/mat"
)

// Use local types so we can hang methods off them
type Vec3 f64.Vec3
type Mat3 f64.Mat3

func Identity() Mat3 {
	return Mat3{1, 0, 0,   0, 1, 0,   0, 0, 1}
}

func (a Mat3)Mult(b Mat3) Mat3 {
	return Mat3{
		a[3*0+0]*b[3*0+0] + a[3*0+1]*b[3*1+0] + a[3*0+2]*b[3*2+0],
		a[3*0+0]*b[3*0+1] + a[3*0+1]*b[3*1+1] + a[3*0+2]*b[3*2+1],
		a[3*0+0]*b[3*0+2] + a[3*0+1]*b[3*1+2] + a[3*0+2]*b[3*2+2],

		a[3*1+0]*b[3*0+0] + a[3*1+1]*b[3*1+0] + a[3*1+2]*b[3*2+0],
		a[3*1+0]*b[3*0+1] + a[3*1+1]*b[3*1+1] + a[3*1+2]*b[3*2+1],
		a[3*1+0]*b[3*0+2] + a[3*1+1]*b[3*1+2] + a[3*1+2]*b[3*2+2],

		a[3*2+0]*b[3*0+0] + a[3*2+1]*b[3*1+0] + a[3*2+2]*b[3*2+0],
		a[3*2+0]*b[3*0+1] + a[3*2+1]*b[3*1+1] + a[3*2+2]*b[3*2+1],
		a[3*2+0]*b[3*0+2] + a[3*2+1]*b[3*1+2] + a[3*2+2]*b[3*2+2],
	}
}

func (m Mat3)Apply(v Vec3) Vec3 {
	return Vec3{
		(m[3*0+0]*v[0] + m[3*0+1]*v[1] + m[3*0+2]*v[2]),
		(m[3*1+0]*v[0] + m[3*1+1]*v[1] + m[3*1+2]*v[2]),
		(m[3*2+0]*v[0] + m[3*2+1]*v[1] + m[3*2+2]*v[2]),
	}
}

func (m Mat3)Scale(f float64) Mat3 {
	for i := range m {
		m[i] *= f
	}
	return m
}

func (a Mat3)Add(b Mat3) Mat3 {
	for i := range a {
		a[i] += b[i]
	}
	return a
}

// Interpolate returns alpha*a + (1-alpha)*b. At alpha==1 the result is
// exactly a, at alpha==0 exactly b.
func Interpolate(a, b Mat3, alpha float64) Mat3 {
	return a.Scale(alpha).Add(b.Scale(1.0 - alpha))
}

// Inverse leans on gonum; a singular matrix comes back as an error, and
// callers decide on their own fallback.
func (m Mat3)Inverse() (Mat3, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, m[:])); err != nil {
		return Identity(), fmt.Errorf("invert %v: %v", m, err)
	}
	ret := Mat3{}
	for r:=0; r<3; r++ {
		for c:=0; c<3; c++ {
			ret[3*r+c] = inv.At(r, c)
		}
	}
	return ret, nil
}

// MustInverse is for matrices that are known to be invertible (fixed
// color space conversions)
func (m Mat3)MustInverse() Mat3 {
	inv, err := m.Inverse()
	if err != nil {
		panic(err)
	}
	return inv
}

func (m Mat3)String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*0+0], m[3*0+1], m[3*0+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*1+0], m[3*1+1], m[3*1+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*2+0], m[3*2+1], m[3*2+2])
	return str
}
func (v Vec3)String() string {
	return fmt.Sprintf("[%12.10f, %12.10f, %12.10f]", v[0], v[1], v[2])
}

// Places the vector on the diagonal of a matrix
func (v Vec3)Diag() Mat3 {
	return Mat3{
		v[0],    0,    0,
		   0, v[1],    0,
		   0,    0, v[2],
	}
}

// Places the vector on the diagonal of a matrix, then inverts it
func (v Vec3)InvertDiag() Mat3 {
	return Mat3{
		1.0 / v[0],           0,           0,
		0,           1.0 / v[1],           0,
		0,                    0,  1.0 / v[2],
	}
}

func (v Vec3)Max() float64 {
	return math.Max(v[0], math.Max(v[1], v[2]))
}

func (v Vec3)Scale(f float64) Vec3 {
	return Vec3{v[0]*f, v[1]*f, v[2]*f}
}

// Clamp returns a copy with every channel inside [min,max]
func (v Vec3)Clamp(min, max float64) Vec3 {
	v.FloorAt(min)
	v.CeilingAt(max)
	return v
}

func (v *Vec3)FloorAt(min float64) {
	if v[0] < min { v[0] = min }
	if v[1] < min { v[1] = min }
	if v[2] < min { v[2] = min }
}

func (v *Vec3)CeilingAt(max float64) {
	if v[0] > max { v[0] = max }
	if v[1] > max { v[1] = max }
	if v[2] > max { v[2] = max }
}

func Clamp(f, min, max float64) float64 {
	if f < min { return min }
	if f > max { return max }
	return f
}
