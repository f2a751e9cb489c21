package trace

import "sort"

// DefaultMinHintOverlap is the minimum fraction of a loop's bounding box
// that must fall inside a hint's for the pair to be considered a match.
const DefaultMinHintOverlap = 0.3

// RegionHint is an externally supplied suggestion that a region of the sheet
// holds a boundary of a particular role. Hints come from upstream stages that
// see the rendered page rather than the vector geometry, so only a bounding
// box and a score survive the trip.
type RegionHint struct {
	BBox  BBox         `json:"bbox"`
	Role  BoundaryRole `json:"role"`
	Score float64      `json:"score"`
}

// HintMatch records which traced loop a hint selected and how well their
// bounding boxes agreed.
type HintMatch struct {
	HintIndex int     `json:"hintIndex"`
	LoopIndex int     `json:"loopIndex"`
	Overlap   float64 `json:"overlap"`
}

// hintOverlap returns the fraction of the loop box that falls inside the
// hint box. Normalizing by the loop keeps a sheet-spanning loop from
// claiming every small hint it happens to cover.
func hintOverlap(loop, hint BBox) float64 {
	loopArea := loop.Area()
	if loopArea <= 0 {
		return 0
	}
	inter, ok := loop.Intersection(hint)
	if !ok {
		return 0
	}
	return inter.Area() / loopArea
}

// MatchRegionHints assigns traced loops to region hints by bounding-box
// overlap. Each loop is claimed by at most one hint; hints with higher scores
// claim first. Among candidate loops a hint takes the one with the highest
// overlap ratio, breaking ties by vertex count.
func MatchRegionHints(loops []BoundaryLoop, hints []RegionHint) []HintMatch {
	return MatchRegionHintsWithOptions(loops, hints, DefaultMinHintOverlap)
}

// MatchRegionHintsWithOptions is like MatchRegionHints but accepts a custom
// minimum overlap ratio.
func MatchRegionHintsWithOptions(loops []BoundaryLoop, hints []RegionHint, minOverlap float64) []HintMatch {
	if len(loops) == 0 || len(hints) == 0 {
		return nil
	}

	// Strongest hints claim their loops first.
	order := make([]int, len(hints))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return hints[order[a]].Score > hints[order[b]].Score
	})

	used := make([]bool, len(loops))
	var matches []HintMatch
	for _, hi := range order {
		hint := hints[hi]
		bestLoop := -1
		bestOverlap := 0.0
		for li := range loops {
			if used[li] {
				continue
			}
			ov := hintOverlap(loops[li].BBox, hint.BBox)
			if ov < minOverlap {
				continue
			}
			if bestLoop < 0 || ov > bestOverlap ||
				(ov == bestOverlap && loops[li].PointCount() > loops[bestLoop].PointCount()) {
				bestOverlap = ov
				bestLoop = li
			}
		}
		if bestLoop < 0 {
			continue
		}
		used[bestLoop] = true
		matches = append(matches, HintMatch{HintIndex: hi, LoopIndex: bestLoop, Overlap: bestOverlap})
	}

	// Report in hint order for deterministic output.
	sort.Slice(matches, func(a, b int) bool {
		return matches[a].HintIndex < matches[b].HintIndex
	})
	return matches
}

// ApplyRegionHints re-labels a classified set using region hints. Matched
// loops take their hint's role; a loop displaced from the outer or inner slot
// demotes to interior. Loops no hint claims keep the roles the classifier
// assigned. With no hints, or none matching, the set is returned unchanged.
func ApplyRegionHints(set ClassifiedBoundarySet, hints []RegionHint) ClassifiedBoundarySet {
	return ApplyRegionHintsWithOptions(set, hints, DefaultMinHintOverlap)
}

// ApplyRegionHintsWithOptions is like ApplyRegionHints but accepts a custom
// minimum overlap ratio.
func ApplyRegionHintsWithOptions(set ClassifiedBoundarySet, hints []RegionHint, minOverlap float64) ClassifiedBoundarySet {
	boundaries := set.Loops()
	if len(boundaries) == 0 || len(hints) == 0 {
		return set
	}

	loops := make([]BoundaryLoop, len(boundaries))
	for i, b := range boundaries {
		loops[i] = b.Loop
	}

	matches := MatchRegionHintsWithOptions(loops, hints, minOverlap)
	if len(matches) == 0 {
		return set
	}

	var out ClassifiedBoundarySet
	assign := func(role BoundaryRole, loop BoundaryLoop) {
		switch role {
		case RoleExteriorOuter:
			if out.ExteriorOuter == nil {
				l := loop
				out.ExteriorOuter = &l
				return
			}
		case RoleExteriorInner:
			if out.ExteriorInner == nil {
				l := loop
				out.ExteriorInner = &l
				return
			}
		}
		out.InteriorWalls = append(out.InteriorWalls, loop)
	}

	// Hinted loops claim their slots first, strongest hints first.
	byScore := make([]HintMatch, len(matches))
	copy(byScore, matches)
	sort.SliceStable(byScore, func(a, b int) bool {
		return hints[byScore[a].HintIndex].Score > hints[byScore[b].HintIndex].Score
	})
	hinted := make(map[int]bool, len(matches))
	for _, m := range byScore {
		hinted[m.LoopIndex] = true
		assign(hints[m.HintIndex].Role, boundaries[m.LoopIndex].Loop)
	}

	// Unmatched loops keep their classifier roles where slots remain free.
	for i, b := range boundaries {
		if hinted[i] {
			continue
		}
		assign(b.Role, b.Loop)
	}

	return out
}
