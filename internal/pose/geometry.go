package pose

import "math"

// Point is a 2D image-normalized position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point returns the position of j, or ok=false when its confidence is below minConf.
func (f *Frame) Point(j Joint, minConf float64) (Point, bool) {
	if !j.Valid() {
		return Point{}, false
	}
	lm := f.Landmarks[j]
	if !(lm.Confidence >= minConf && lm.Confidence > 0) || !finite(lm.X) || !finite(lm.Y) {
		return Point{}, false
	}
	return Point{X: lm.X, Y: lm.Y}, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Mid returns the midpoint of a left/right joint pair. Both must be available.
func (f *Frame) Mid(l, r Joint, minConf float64) (Point, bool) {
	a, ok := f.Point(l, minConf)
	if !ok {
		return Point{}, false
	}
	b, ok := f.Point(r, minConf)
	if !ok {
		return Point{}, false
	}
	return Midpoint(a, b), true
}

// Available reports whether every joint in js is above minConf.
func (f *Frame) Available(minConf float64, js ...Joint) bool {
	for _, j := range js {
		if _, ok := f.Point(j, minConf); !ok {
			return false
		}
	}
	return true
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Angle returns the angle at vertex b formed by a-b-c, in degrees (0..180),
// using the law of cosines. ok is false when either arm has zero length.
func Angle(a, b, c Point) (float64, bool) {
	ab := Distance(a, b)
	cb := Distance(c, b)
	if ab < 1e-9 || cb < 1e-9 {
		return 0, false
	}
	ac := Distance(a, c)
	cos := (ab*ab + cb*cb - ac*ac) / (2 * ab * cb)
	// Rounding can push cos marginally outside [-1, 1].
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, true
}

// AngleFromVertical returns how far the segment from base to tip leans away
// from straight up, in degrees (0 = upright, 90 = horizontal).
func AngleFromVertical(base, tip Point) (float64, bool) {
	return Angle(tip, base, Point{X: base.X, Y: base.Y - 1})
}

// TorsoLength is the shoulder-mid to hip-mid distance, used as the body scale
// that makes thresholds independent of subject size and camera distance.
func TorsoLength(f *Frame, minConf float64) (float64, bool) {
	sh, ok := f.Mid(LeftShoulder, RightShoulder, minConf)
	if !ok {
		return 0, false
	}
	hip, ok := f.Mid(LeftHip, RightHip, minConf)
	if !ok {
		return 0, false
	}
	d := Distance(sh, hip)
	if d < 1e-9 {
		return 0, false
	}
	return d, true
}

// Displacement returns (current - baseline) / scale. ok is false for a
// non-positive scale.
func Displacement(current, baseline, scale float64) (float64, bool) {
	if scale <= 0 || math.IsNaN(scale) {
		return 0, false
	}
	return (current - baseline) / scale, true
}

// LineXAt returns the x coordinate at height y on the line through a and b.
// For a horizontal line the mean x is returned.
func LineXAt(a, b Point, y float64) float64 {
	dy := b.Y - a.Y
	if math.Abs(dy) < 1e-9 {
		return (a.X + b.X) / 2
	}
	return a.X + (y-a.Y)*(b.X-a.X)/dy
}

// LineYAt returns the y coordinate at x on the line through a and b.
// For a vertical line the mean y is returned.
func LineYAt(a, b Point, x float64) float64 {
	dx := b.X - a.X
	if math.Abs(dx) < 1e-9 {
		return (a.Y + b.Y) / 2
	}
	return a.Y + (x-a.X)*(b.Y-a.Y)/dx
}
