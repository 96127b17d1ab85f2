package dcp

import(
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// A Spline is a 1-D curve through some knots, on [0,1]. Monotonic
// knots get a Fritsch-Butland spline, which can't overshoot, so the
// curve stays monotonic; others get a natural cubic spline. Two knots
// is a straight line.
type Spline struct {
	Xs, Ys []float64
	pred   interp.Predictor
}

func NewSpline(xs, ys []float64) (*Spline, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("spline: %d xs but %d ys", len(xs), len(ys))
	}

	// Sort, and drop repeated xs (last one wins); the fitters want strictly increasing xs
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return xs[idx[i]] < xs[idx[j]] })
	sx, sy := []float64{}, []float64{}
	for _, i := range idx {
		if n := len(sx); n > 0 && sx[n-1] == xs[i] {
			sy[n-1] = ys[i]
			continue
		}
		sx = append(sx, xs[i])
		sy = append(sy, ys[i])
	}

	if len(sx) < 2 {
		return nil, fmt.Errorf("spline: need at least two distinct knots, have %d", len(sx))
	}

	var fp interp.FittablePredictor
	switch {
	case len(sx) == 2:    fp = &interp.PiecewiseLinear{}
	case nonDecreasing(sy): fp = &interp.FritschButland{}
	default:              fp = &interp.NaturalCubic{}
	}
	if err := fp.Fit(sx, sy); err != nil {
		return nil, fmt.Errorf("spline fit: %v", err)
	}

	return &Spline{Xs: sx, Ys: sy, pred: fp}, nil
}

// Eval clamps x into the knot range before predicting
func (s *Spline)Eval(x float64) float64 {
	if x <= s.Xs[0] {
		return s.Ys[0]
	} else if last := len(s.Xs)-1; x >= s.Xs[last] {
		return s.Ys[last]
	}
	return s.pred.Predict(x)
}

// Sample evaluates the curve at n evenly spaced points across [0,1],
// clamping results into [0,1].
func (s *Spline)Sample(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = clamp01(s.Eval(float64(i) / float64(n-1)))
	}
	return out
}

func (s *Spline)String() string {
	return fmt.Sprintf("spline[%d knots]", len(s.Xs))
}

func nonDecreasing(ys []float64) bool {
	for i:=1; i<len(ys); i++ {
		if ys[i] < ys[i-1] {
			return false
		}
	}
	return true
}

func clamp01(f float64) float64 {
	if f < 0 { return 0 }
	if f > 1 { return 1 }
	return f
}
