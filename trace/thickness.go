package trace

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WallMinSeparation and WallMaxSeparation bracket the perpendicular
// distances treated as plausible wall thicknesses.
const (
	WallMinSeparation = 3.0
	WallMaxSeparation = 30.0
)

// wallParallelCos is the minimum |cos| between segment directions for a
// pair to count as parallel wall faces.
const wallParallelCos = 0.9

// wallProjectionGap lets projections miss each other by this much along
// the shared direction and still count as facing.
const wallProjectionGap = 5.0

// wallAngleBucketDeg is the angle bin width used to prefilter candidate
// parallel pairs.
const wallAngleBucketDeg = 5.0

// minWallPairs is the number of facing pairs required before the measured
// thickness is trusted.
const minWallPairs = 3

// EstimateWallThickness measures the typical wall thickness of a drawing
// as the median perpendicular separation between parallel facing segment
// pairs. Segments are binned by angle so only near-parallel candidates are
// compared. Returns false when too few facing pairs exist to trust the
// measurement.
func EstimateWallThickness(segments []Segment) (float64, bool) {
	numBuckets := int(180 / wallAngleBucketDeg)
	buckets := make([][]int, numBuckets)
	for i, seg := range segments {
		d, ok := unitDirection(seg.Start, seg.End)
		if !ok {
			continue
		}
		theta := math.Atan2(d.Y, d.X) * 180 / math.Pi
		if theta < 0 {
			theta += 180
		}
		b := int(theta/wallAngleBucketDeg) % numBuckets
		buckets[b] = append(buckets[b], i)
	}

	var separations []float64
	for b := 0; b < numBuckets; b++ {
		members := buckets[b]
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				if sep, ok := facingSeparation(segments[members[i]], segments[members[j]]); ok {
					separations = append(separations, sep)
				}
			}
			// Near-parallel segments can straddle a bin boundary.
			for _, other := range buckets[(b+1)%numBuckets] {
				if sep, ok := facingSeparation(segments[members[i]], segments[other]); ok {
					separations = append(separations, sep)
				}
			}
		}
	}

	if len(separations) < minWallPairs {
		return 0, false
	}
	sort.Float64s(separations)
	return stat.Quantile(0.5, stat.Empirical, separations, nil), true
}

// facingSeparation returns the perpendicular distance between two segments
// when they form a facing wall pair: parallel within wallParallelCos,
// separated within the wall thickness bracket, and overlapping along their
// shared direction within the projection gap.
func facingSeparation(a, b Segment) (float64, bool) {
	da, ok := unitDirection(a.Start, a.End)
	if !ok {
		return 0, false
	}
	db, ok := unitDirection(b.Start, b.End)
	if !ok {
		return 0, false
	}
	if math.Abs(da.X*db.X+da.Y*db.Y) <= wallParallelCos {
		return 0, false
	}

	midX := (b.Start.X + b.End.X) / 2
	midY := (b.Start.Y + b.End.Y) / 2
	perp := math.Abs(da.X*(midY-a.Start.Y) - da.Y*(midX-a.Start.X))
	if perp < WallMinSeparation || perp > WallMaxSeparation {
		return 0, false
	}

	// Project both onto a's direction and require near-overlap.
	aLen := Distance(a.Start, a.End)
	tb0 := (b.Start.X-a.Start.X)*da.X + (b.Start.Y-a.Start.Y)*da.Y
	tb1 := (b.End.X-a.Start.X)*da.X + (b.End.Y-a.Start.Y)*da.Y
	lo := math.Min(tb0, tb1)
	hi := math.Max(tb0, tb1)
	if hi < -wallProjectionGap || lo > aLen+wallProjectionGap {
		return 0, false
	}

	return perp, true
}

// sheetTrimFraction is the percentile trimmed from each end of the
// endpoint distribution when estimating sheet bounds.
const sheetTrimFraction = 0.02

// EstimateSheetBounds derives sheet extents from the segment cloud when a
// payload carries none. Endpoint coordinates are trimmed at the upper
// percentile to shed plotter noise and stray marks; drawings are assumed
// to be anchored at the origin.
func EstimateSheetBounds(segments []Segment) (SheetBounds, bool) {
	if len(segments) == 0 {
		return SheetBounds{}, false
	}

	xs := make([]float64, 0, 2*len(segments))
	ys := make([]float64, 0, 2*len(segments))
	for _, seg := range segments {
		xs = append(xs, seg.Start.X, seg.End.X)
		ys = append(ys, seg.Start.Y, seg.End.Y)
	}
	sort.Float64s(xs)
	sort.Float64s(ys)

	width := stat.Quantile(1-sheetTrimFraction, stat.Empirical, xs, nil)
	height := stat.Quantile(1-sheetTrimFraction, stat.Empirical, ys, nil)
	if width <= 0 || height <= 0 {
		return SheetBounds{}, false
	}
	return SheetBounds{Width: width, Height: height}, true
}
