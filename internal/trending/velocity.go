package trending

import "math"

// TrendMetrics holds every competing velocity formula for one token. The
// formulas are deliberately not reconciled into a single score; callers
// pick the one that suits them via GetTrendingTopics.
type TrendMetrics struct {
	// MS is the delta-over-power metric: the last hour-over-hour delta
	// plus the delta against the same hour a day earlier, each damped by
	// the current count raised to alpha.
	MS float64
	// ZScore positions the current count against the window's mean and
	// standard deviation.
	ZScore float64
	// Ratio is the plain hour-over-hour growth factor.
	Ratio float64
	// DampedRatio damps the previous count by alpha before dividing.
	DampedRatio float64
	// Slope is the least-squares line slope over the smoothed series.
	Slope float64
	// CurvedSlope is the end-of-series derivative of a quadratic fit over
	// the smoothed series.
	CurvedSlope float64
	// Current is the raw count of the latest bucket.
	Current float64
}

// MetricBy returns the metric selected by name, defaulting to MS for
// anything unrecognised.
func (m TrendMetrics) MetricBy(method string) float64 {
	switch method {
	case "zscore":
		return m.ZScore
	case "ratio":
		return m.Ratio
	case "damped_ratio":
		return m.DampedRatio
	case "slope":
		return m.Slope
	case "curved_slope":
		return m.CurvedSlope
	default:
		return m.MS
	}
}

// computeMetrics derives all velocity formulas from one token's hourly
// series, oldest bucket first. Series shorter than two buckets carry no
// velocity signal and yield zeroes throughout.
func computeMetrics(series []float64, alpha float64) TrendMetrics {
	if len(series) == 0 {
		return TrendMetrics{}
	}
	cur := series[len(series)-1]
	m := TrendMetrics{Current: cur}
	if len(series) < 2 {
		return m
	}
	prev := series[len(series)-2]

	m.MS = deltaOverPower(series, alpha)
	m.ZScore = zScore(series)
	m.Ratio = cur / math.Max(prev, 1)
	m.DampedRatio = cur / math.Pow(math.Max(prev, 1), alpha)

	smoothed := movingAverage(series, 3)
	m.Slope = lineSlope(smoothed)
	m.CurvedSlope = quadraticEndSlope(smoothed)
	return m
}

func deltaOverPower(series []float64, alpha float64) float64 {
	cur := series[len(series)-1]
	damp := math.Pow(cur, alpha)
	if damp == 0 {
		return 0
	}
	v := (cur - series[len(series)-2]) / damp
	// Same-hour-yesterday delta, when the window reaches back that far.
	if len(series) > 24 {
		v += (cur - series[len(series)-25]) / damp
	}
	return v
}

func zScore(series []float64) float64 {
	mean, std := meanStd(series)
	if std == 0 {
		return 0
	}
	return (series[len(series)-1] - mean) / std
}

func meanStd(series []float64) (float64, float64) {
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(len(series))
	var sq float64
	for _, v := range series {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(series)))
}

// movingAverage smooths with a trailing window of size w. The first w-1
// points average over what is available so the series keeps its length.
func movingAverage(series []float64, w int) []float64 {
	out := make([]float64, len(series))
	var sum float64
	for i, v := range series {
		sum += v
		n := w
		if i+1 < w {
			n = i + 1
		} else if i >= w {
			sum -= series[i-w]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// lineSlope fits y = a + b*x over x = 0..n-1 and returns b.
func lineSlope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// quadraticEndSlope fits y = a + b*x + c*x^2 and evaluates the derivative
// b + 2*c*x at the last point. Falls back to the linear slope when the
// series is too short for a stable quadratic fit.
func quadraticEndSlope(series []float64) float64 {
	n := float64(len(series))
	if n < 3 {
		return lineSlope(series)
	}
	var s0, s1, s2, s3, s4, t0, t1, t2 float64
	s0 = n
	for i, y := range series {
		x := float64(i)
		x2 := x * x
		s1 += x
		s2 += x2
		s3 += x2 * x
		s4 += x2 * x2
		t0 += y
		t1 += x * y
		t2 += x2 * y
	}
	// Solve the 3x3 normal equations by Cramer's rule.
	det := s0*(s2*s4-s3*s3) - s1*(s1*s4-s2*s3) + s2*(s1*s3-s2*s2)
	if det == 0 {
		return lineSlope(series)
	}
	b := (s0*(t1*s4-s3*t2) - t0*(s1*s4-s2*s3) + s2*(s1*t2-t1*s2)) / det
	c := (s0*(s2*t2-t1*s3) - s1*(s1*t2-t1*s2) + t0*(s1*s3-s2*s2)) / det
	return b + 2*c*(n-1)
}
