package layout

import "math"

// Point is a position on the sheet
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is one knife stroke
type Segment struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// CutPath is a reordered stroke list with its air travel before and after
type CutPath struct {
	Segments        []Segment `json:"segments"`
	OriginalTravel  float64   `json:"originalTravel"`
	OptimizedTravel float64   `json:"optimizedTravel"`
	SavedPercent    float64   `json:"savedPercent"`
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// airTravel is the non-cutting distance from the origin through segments
// in the given order
func airTravel(segments []Segment) float64 {
	var total float64
	pos := Point{}
	for _, s := range segments {
		total += distance(pos, s.Start)
		pos = s.End
	}
	return total
}

// OptimizeCutPath orders segments by greedy nearest neighbour from the
// origin. A segment whose end is nearer than its start is cut reversed.
func OptimizeCutPath(segments []Segment) CutPath {
	if len(segments) == 0 {
		return CutPath{Segments: []Segment{}}
	}

	remaining := make([]Segment, len(segments))
	copy(remaining, segments)
	ordered := make([]Segment, 0, len(segments))
	pos := Point{}

	for len(remaining) > 0 {
		best, flip := 0, false
		bestDist := math.Inf(1)
		for i, s := range remaining {
			if d := distance(pos, s.Start); d < bestDist {
				best, flip, bestDist = i, false, d
			}
			if d := distance(pos, s.End); d < bestDist {
				best, flip, bestDist = i, true, d
			}
		}

		next := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)
		if flip {
			next = Segment{Start: next.End, End: next.Start}
		}
		ordered = append(ordered, next)
		pos = next.End
	}

	original := airTravel(segments)
	optimized := airTravel(ordered)
	saved := 0.0
	if original > 0 {
		saved = (original - optimized) / original * 100
	}

	return CutPath{
		Segments:        ordered,
		OriginalTravel:  round2(original),
		OptimizedTravel: round2(optimized),
		SavedPercent:    round2(saved),
	}
}
