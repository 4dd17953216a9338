// Package planner decides which listing pages a crawl run visits.
package planner

// Plan is the ordered set of pages for one run.
type Plan struct {
	Pages  []int
	IsFull bool
	// StopOnEmpty asks the runner to stop at the first page that adds no
	// new ids once some records have been collected.
	StopOnEmpty bool
}

// Start is the first planned page, or 0 for an empty plan.
func (p Plan) Start() int {
	if len(p.Pages) == 0 {
		return 0
	}
	return p.Pages[0]
}

// End is the last planned page, or 0 for an empty plan.
func (p Plan) End() int {
	if len(p.Pages) == 0 {
		return 0
	}
	return p.Pages[len(p.Pages)-1]
}

// CountGated crawls a wide range while the store holds nothing for the
// source, and a short recent range afterwards.
type CountGated struct {
	FullPages        int
	IncrementalPages int
}

// Plan picks the range from the number of stored rows. forceFull wins over
// the count.
func (c CountGated) Plan(stored int64, forceFull bool) Plan {
	if forceFull || stored == 0 {
		return Plan{Pages: pageRange(1, c.FullPages), IsFull: true}
	}
	return Plan{Pages: pageRange(1, c.IncrementalPages)}
}

// Rotating walks the remote catalog a few pages per full run, keeping its
// place in a persisted cursor. Incremental runs always look at the top.
type Rotating struct {
	PagesPerFull     int
	IncrementalPages int
	Cap              int
	// Exhaustive full runs scan from the cursor to Cap and rely on the
	// runner's empty-page stop instead of a fixed page count.
	Exhaustive bool
}

// Plan builds the range for a run. cursor is ignored for incremental runs.
func (r Rotating) Plan(cursor int, full bool) Plan {
	if !full {
		return Plan{Pages: pageRange(1, clamp(r.IncrementalPages, 1, r.Cap))}
	}
	start := clamp(cursor, 1, r.Cap)
	if r.Exhaustive {
		return Plan{Pages: pageRange(start, r.Cap), IsFull: true, StopOnEmpty: true}
	}
	end := clamp(start+r.PagesPerFull-1, 1, r.Cap)
	return Plan{Pages: pageRange(start, end), IsFull: true}
}

// Outcome is what the runner observed for a rotating full run.
type Outcome struct {
	// LastPage is the last page actually requested.
	LastPage int
	// Records is the number of distinct records the run collected.
	Records int
	// Exhausted is set when the runner stopped early on an empty page.
	Exhausted bool
}

// Next returns the cursor to persist after a full run of plan.
//
// A run that found nothing past page 1 has walked off the end of the
// catalog, as has one that stopped on an empty page; both start over at 1.
// Reaching Cap wraps to 1. Otherwise the cursor moves just past the last
// page crawled.
func (r Rotating) Next(plan Plan, out Outcome) int {
	last := out.LastPage
	if last == 0 {
		last = plan.End()
	}
	switch {
	case out.Records == 0 && plan.Start() > 1:
		return 1
	case out.Exhausted:
		return 1
	case last >= r.Cap:
		return 1
	default:
		return clamp(last+1, 1, r.Cap)
	}
}

func pageRange(start, end int) []int {
	if end < start {
		return nil
	}
	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
