package trace

import (
	"math"
	"sort"
)

// DefaultNestingSlack is the per-side slack when testing whether an inner
// candidate's bounding box nests inside the outer boundary's box.
const DefaultNestingSlack = 10.0

// DefaultInnerPerimeterRatio is the minimum perimeter an inner candidate
// must carry relative to the outer boundary.
const DefaultInnerPerimeterRatio = 0.40

// DefaultEdgeMarginFraction scales the shorter sheet side into the margin
// used by the sheet-edge classification policy.
const DefaultEdgeMarginFraction = 0.10

// ClassifierConfig controls boundary role assignment.
type ClassifierConfig struct {
	// NestingSlack allows the inner candidate's bbox to protrude this far
	// per side. Default: 10.
	NestingSlack float64

	// InnerPerimeterRatio is the minimum inner/outer perimeter ratio.
	// Default: 0.40.
	InnerPerimeterRatio float64

	// PreferSheetEdges switches outer selection to sheet-edge proximity.
	// Ignored without sheet bounds.
	PreferSheetEdges bool

	// EdgeMarginFraction sets the sheet-edge margin as a fraction of the
	// shorter sheet side. Default: 0.10.
	EdgeMarginFraction float64
}

// DefaultClassifierConfig returns a ClassifierConfig with the package
// defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		NestingSlack:        DefaultNestingSlack,
		InnerPerimeterRatio: DefaultInnerPerimeterRatio,
		EdgeMarginFraction:  DefaultEdgeMarginFraction,
	}
}

// LoopScore ranks a loop for exterior selection. Longer boundaries with
// more corners score higher.
func LoopScore(loop *BoundaryLoop) float64 {
	return loop.Perimeter * math.Sqrt(float64(loop.PointCount()))
}

// ClassifyLoops assigns boundary roles to validated loops. The highest
// scoring loop becomes the outer exterior face; the first remaining loop
// nested inside it with a comparable perimeter becomes the inner face;
// everything else is an interior wall. With PreferSheetEdges set and sheet
// bounds supplied, outer selection is restricted to loops whose bbox
// approaches a sheet edge, falling back to the score rule when none does.
// The inner slot stays nil when no candidate qualifies.
func ClassifyLoops(loops []BoundaryLoop, sheet *SheetBounds, config ClassifierConfig) ClassifiedBoundarySet {
	if config.NestingSlack <= 0 {
		config.NestingSlack = DefaultNestingSlack
	}
	if config.InnerPerimeterRatio <= 0 {
		config.InnerPerimeterRatio = DefaultInnerPerimeterRatio
	}
	if config.EdgeMarginFraction <= 0 {
		config.EdgeMarginFraction = DefaultEdgeMarginFraction
	}

	var set ClassifiedBoundarySet
	if len(loops) == 0 {
		return set
	}

	ranked := make([]*BoundaryLoop, len(loops))
	for i := range loops {
		ranked[i] = &loops[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := LoopScore(ranked[i]), LoopScore(ranked[j])
		if si != sj {
			return si > sj
		}
		if ranked[i].BBox.MinX != ranked[j].BBox.MinX {
			return ranked[i].BBox.MinX < ranked[j].BBox.MinX
		}
		return ranked[i].BBox.MinY < ranked[j].BBox.MinY
	})

	outerIdx := 0
	if config.PreferSheetEdges && sheet != nil && sheet.Width > 0 && sheet.Height > 0 {
		outerIdx = pickSheetEdgeOuter(ranked, *sheet, config.EdgeMarginFraction)
	}
	outer := ranked[outerIdx]
	set.ExteriorOuter = outer.Clone()

	innerIdx := -1
	for i, loop := range ranked {
		if i == outerIdx {
			continue
		}
		if !outer.BBox.ContainsWithin(loop.BBox, config.NestingSlack) {
			continue
		}
		if loop.Perimeter < config.InnerPerimeterRatio*outer.Perimeter {
			continue
		}
		innerIdx = i
		break
	}
	if innerIdx >= 0 {
		set.ExteriorInner = ranked[innerIdx].Clone()
	}

	for i, loop := range ranked {
		if i == outerIdx || i == innerIdx {
			continue
		}
		set.InteriorWalls = append(set.InteriorWalls, *loop.Clone())
	}
	return set
}

// pickSheetEdgeOuter returns the index of the best exterior candidate under
// the sheet-edge policy: the highest ranked loop whose bbox comes within the
// margin of any sheet edge, ties broken by the smaller edge distance. Falls
// back to the top ranked loop when no candidate reaches an edge.
func pickSheetEdgeOuter(ranked []*BoundaryLoop, sheet SheetBounds, marginFraction float64) int {
	margin := marginFraction * minf(sheet.Width, sheet.Height)

	best := -1
	bestScore := 0.0
	bestDist := 0.0
	for i, loop := range ranked {
		dist := loop.BBox.EdgeDistance(sheet)
		if dist > margin {
			continue
		}
		score := LoopScore(loop)
		if best < 0 || score > bestScore || (score == bestScore && dist < bestDist) {
			best, bestScore, bestDist = i, score, dist
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
