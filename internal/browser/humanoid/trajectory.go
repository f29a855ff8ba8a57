package humanoid

import "math"

// Vector2D is a point or displacement in viewport pixels.
type Vector2D struct {
	X, Y float64
}

func (v Vector2D) Add(o Vector2D) Vector2D { return Vector2D{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vector2D) Sub(o Vector2D) Vector2D { return Vector2D{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vector2D) Mul(s float64) Vector2D { return Vector2D{X: v.X * s, Y: v.Y * s} }
func (v Vector2D) Dist(o Vector2D) float64 { return math.Hypot(v.X-o.X, v.Y-o.Y) }
func (v Vector2D) Mag() float64 { return math.Hypot(v.X, v.Y) }
func (v Vector2D) Lerp(o Vector2D, t float64) Vector2D {
	return Vector2D{X: v.X + (o.X-v.X)*t, Y: v.Y + (o.Y-v.Y)*t}
}

// Normalize returns the unit vector, or zero for a zero vector.
func (v Vector2D) Normalize() Vector2D {
	m := v.Mag()
	if m == 0 {
		return Vector2D{}
	}
	return Vector2D{X: v.X / m, Y: v.Y / m}
}

// easeInOut is a smoothstep curve: slow start, fast middle, slow landing.
func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}

// buildPath returns steps points from start (exclusive) to end (inclusive).
// Intermediate points waver perpendicular to the travel direction using
// Perlin noise; the final point is exactly end. Assumes the lock is held.
func (h *Humanoid) buildPath(start, end Vector2D, steps int) []Vector2D {
	if steps < 1 {
		steps = 1
	}
	dir := end.Sub(start)
	perp := Vector2D{X: -dir.Y, Y: dir.X}.Normalize()
	amplitude := h.cfg.PerlinAmplitude
	// Offset into the noise field so successive moves differ.
	phase := h.rng.Float64() * 100

	path := make([]Vector2D, 0, steps)
	for i := 1; i <= steps; i++ {
		if i == steps {
			path = append(path, end)
			break
		}
		t := float64(i) / float64(steps)
		p := start.Lerp(end, easeInOut(t))
		// Damp the waver near both ends.
		envelope := math.Sin(math.Pi * t)
		wx := h.noiseX.Noise1D(phase+t*2) * amplitude * envelope
		wy := h.noiseY.Noise1D(phase+t*2) * amplitude * envelope
		path = append(path, p.Add(perp.Mul(wx)).Add(Vector2D{X: 0, Y: wy * 0.5}))
	}
	return path
}
