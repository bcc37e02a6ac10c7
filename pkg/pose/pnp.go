package pose

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Camera is a pinhole model without lens distortion.
type Camera struct {
	Focal  float64
	CX, CY float64
}

// NewCamera returns the approximate webcam model used for head pose: focal
// length equal to the frame width, principal point at the frame centre.
func NewCamera(width, height int) Camera {
	return Camera{Focal: float64(width), CX: float64(width) / 2, CY: float64(height) / 2}
}

// Project maps an object point through rotation vector r and translation t.
// ok is false when the point lands behind the camera.
func (c Camera) Project(r, t, p Vec3) (u, v float64, ok bool) {
	return c.project(Rodrigues(r), t, p)
}

func (c Camera) project(rot Mat3, t, p Vec3) (u, v float64, ok bool) {
	x := rot.MulVec(p)
	x[0] += t[0]
	x[1] += t[1]
	x[2] += t[2]
	if x[2] <= 1e-9 {
		return 0, 0, false
	}
	return c.Focal*x[0]/x[2] + c.CX, c.Focal*x[1]/x[2] + c.CY, true
}

const (
	pnpMaxIterations = 100
	pnpTolerance     = 1e-10
	pnpStep          = 1e-6
)

// SolvePnP recovers the rotation vector and translation that project the
// object points onto the image points, by Levenberg–Marquardt refinement of
// reprojection error. The search starts from the fronto-parallel pose whose
// projection maps object (x, y) onto themselves, which suits landmarks
// already expressed in pixel space.
func SolvePnP(object []Vec3, img [][2]float64, cam Camera) (r, t Vec3, ok bool) {
	if len(object) < 4 || len(object) != len(img) {
		return r, t, false
	}

	params := []float64{0, 0, 0, -cam.CX, -cam.CY, cam.Focal}
	n := 2 * len(object)
	res := mat.NewVecDense(n, nil)

	cost, valid := reprojection(params, object, img, cam, res.RawVector().Data)
	if !valid {
		return r, t, false
	}

	residuals := func(y, x []float64) {
		if _, ok := reprojection(x, object, img, cam, y); !ok {
			for i := range y {
				y[i] = math.NaN()
			}
		}
	}

	lambda := 1e-3
	jac := mat.NewDense(n, 6, nil)
	trial := make([]float64, n)
	next := make([]float64, 6)

	damped := mat.NewSymDense(6, nil)
	var (
		a       mat.SymDense
		g, step mat.VecDense
		chol    mat.Cholesky
	)

	for iter := 0; iter < pnpMaxIterations && cost > 1e-18; iter++ {
		fd.Jacobian(jac, residuals, params, &fd.JacobianSettings{
			Formula: fd.Central,
			Step:    pnpStep,
		})
		if !finite(jac.RawMatrix().Data) {
			return r, t, false
		}

		a.SymOuterK(1, jac.T())
		g.MulVec(jac.T(), res)
		g.ScaleVec(-1, &g)

		improved := false
		for attempt := 0; attempt < 10; attempt++ {
			damped.CopySym(&a)
			for i := 0; i < 6; i++ {
				damped.SetSym(i, i, a.At(i, i)+lambda*math.Max(a.At(i, i), 1e-12))
			}
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(&step, &g); err != nil {
				lambda *= 10
				continue
			}

			for i := range next {
				next[i] = params[i] + step.AtVec(i)
			}

			nextCost, nextValid := reprojection(next, object, img, cam, trial)
			if nextValid && nextCost < cost {
				copy(params, next)
				cost = nextCost
				copy(res.RawVector().Data, trial)
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				if mat.Norm(&step, 2) < pnpTolerance {
					iter = pnpMaxIterations
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}

	if !finite(params) {
		return r, t, false
	}
	return Vec3{params[0], params[1], params[2]}, Vec3{params[3], params[4], params[5]}, true
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// reprojection fills res with image-space residuals and returns their sum of
// squares. valid is false if any point projects behind the camera or the
// error is not finite.
func reprojection(params []float64, object []Vec3, img [][2]float64, cam Camera, res []float64) (float64, bool) {
	rot := Rodrigues(Vec3{params[0], params[1], params[2]})
	t := Vec3{params[3], params[4], params[5]}

	cost := 0.0
	for i, p := range object {
		u, v, ok := cam.project(rot, t, p)
		if !ok {
			return 0, false
		}
		res[2*i] = u - img[i][0]
		res[2*i+1] = v - img[i][1]
		cost += res[2*i]*res[2*i] + res[2*i+1]*res[2*i+1]
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, false
	}
	return cost, true
}
