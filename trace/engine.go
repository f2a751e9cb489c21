package trace

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"
)

// Hard input errors. Everything else a trace call produces is a normal
// result with diagnostics attached.
var (
	ErrNonFiniteCoordinate = errors.New("non-finite coordinate")
	ErrNegativeWidth       = errors.New("negative segment width")
)

// Options bundles the tunables for one Trace call. The zero value uses
// package defaults throughout.
type Options struct {
	// Sheet is the drawing sheet extent. Sheet-dependent policies fall
	// back to their defaults when nil.
	Sheet *SheetBounds

	// SnapTolerance and ConnectionTolerance drive grouping. Zero means
	// the package default.
	SnapTolerance       float64
	ConnectionTolerance float64

	// BudgetLimit soft-bounds grouping time. Zero means unlimited.
	BudgetLimit time.Duration

	Tracer     TracerConfig
	Validator  ValidatorConfig
	Classifier ClassifierConfig

	// OffsetDistance is the inward displacement for the synthetic inner
	// fallback. With EstimateOffsetFromWalls set, a thickness measured
	// from parallel wall pairs takes precedence.
	OffsetDistance          float64
	EstimateOffsetFromWalls bool

	// Workers caps per-component parallelism. Zero picks NumCPU.
	Workers int
}

// DefaultOptions returns Options with every tolerance at its package
// default and no grouping budget.
func DefaultOptions() Options {
	return Options{
		Tracer:         DefaultTracerConfig(),
		Validator:      DefaultValidatorConfig(),
		Classifier:     DefaultClassifierConfig(),
		OffsetDistance: DefaultOffsetDistance,
	}
}

// Trace runs the full boundary pipeline over a flat segment list: group
// connected segments, trace each component into candidate loops, validate,
// classify, and synthesize an inner face when none was found. It is a pure
// function of its inputs; concurrent calls are independent. The only hard
// errors are non-finite coordinates and negative widths. Absent or
// unusable geometry yields an empty boundary set with diagnostics, not an
// error.
func Trace(segments []Segment, opts Options) (*TraceResult, error) {
	if err := checkSegments(segments); err != nil {
		return nil, err
	}

	result := &TraceResult{}
	if len(segments) == 0 {
		result.Diagnostics.Notes = append(result.Diagnostics.Notes, NoteEmptyInput)
		return result, nil
	}

	grouped := GroupSegments(segments, opts.SnapTolerance, opts.ConnectionTolerance, NewBudget(opts.BudgetLimit))
	result.Diagnostics.ComponentCount = len(grouped.Components)
	if grouped.Degraded {
		result.Diagnostics.Degraded = true
		result.Diagnostics.Notes = append(result.Diagnostics.Notes, NoteGroupingDeadline)
	}

	loops, rejected := traceComponents(grouped, opts)
	result.Diagnostics.RejectedLoops = rejected
	result.Diagnostics.LoopCount = len(loops)

	if len(loops) == 0 {
		result.Diagnostics.Notes = append(result.Diagnostics.Notes, NoteInsufficientGeometry)
		return result, nil
	}

	result.Boundaries = ClassifyLoops(loops, opts.Sheet, opts.Classifier)

	if result.Boundaries.ExteriorOuter != nil && result.Boundaries.ExteriorInner == nil {
		distance := opts.OffsetDistance
		if opts.EstimateOffsetFromWalls {
			if measured, ok := EstimateWallThickness(segments); ok {
				distance = measured
			}
		}
		inner, reason := OffsetInward(result.Boundaries.ExteriorOuter, distance, opts.Validator)
		if reason == "" {
			result.Boundaries.ExteriorInner = inner
		} else {
			result.Diagnostics.RejectedLoops = append(result.Diagnostics.RejectedLoops, RejectedLoop{
				Reason:     reason,
				PointCount: result.Boundaries.ExteriorOuter.PointCount(),
			})
		}
	}

	return result, nil
}

func checkSegments(segments []Segment) error {
	for i, seg := range segments {
		for _, v := range [4]float64{seg.Start.X, seg.Start.Y, seg.End.X, seg.End.Y} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("segment %d: %w", i, ErrNonFiniteCoordinate)
			}
		}
		if seg.Width < 0 {
			return fmt.Errorf("segment %d: %w", i, ErrNegativeWidth)
		}
	}
	return nil
}

type componentOutcome struct {
	loops    []BoundaryLoop
	rejected []RejectedLoop
}

// traceComponents walks every component on a bounded worker pool. Outcomes
// land in a slice indexed by component, so the merged order matches the
// deterministic component order regardless of scheduling.
func traceComponents(grouped GroupResult, opts Options) ([]BoundaryLoop, []RejectedLoop) {
	components := grouped.Components
	if len(components) == 0 {
		return nil, nil
	}
	outcomes := make([]componentOutcome, len(components))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(components) {
		workers = len(components)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ci := range jobs {
				outcomes[ci] = traceOneComponent(grouped.Segments, components[ci], opts)
			}
		}()
	}
	for ci := range components {
		jobs <- ci
	}
	close(jobs)
	wg.Wait()

	var loops []BoundaryLoop
	var rejected []RejectedLoop
	for _, out := range outcomes {
		loops = append(loops, out.loops...)
		rejected = append(rejected, out.rejected...)
	}
	return loops, rejected
}

func traceOneComponent(segments []Segment, component []int, opts Options) componentOutcome {
	var out componentOutcome
	for _, candidate := range TraceComponentLoops(segments, component, opts.Tracer) {
		loop, reason := ValidateLoop(candidate, opts.Validator)
		if reason != "" {
			out.rejected = append(out.rejected, RejectedLoop{Reason: reason, PointCount: len(candidate)})
			continue
		}
		out.loops = append(out.loops, *loop)
	}
	return out
}
