package split

import "strconv"

// Range is a 1-based, inclusive page range.
type Range struct {
	Start int
	End   int
}

// Pages is the number of pages in r.
func (r Range) Pages() int { return r.End - r.Start + 1 }

func (r Range) selector() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return strconv.Itoa(r.Start) + "-" + strconv.Itoa(r.End)
}

// Estimate is the projected size of a document holding pages r. sizes[i] is
// the size of page i+1 serialized on its own, which includes overhead once.
func Estimate(sizes []int64, overhead int64, r Range) int64 {
	var total int64
	for p := r.Start; p <= r.End; p++ {
		total += sizes[p-1]
	}
	return total - int64(r.Pages()-1)*overhead
}

// NextRange grows a range from start while the estimate stays within limit.
// A single page is always accepted, even when it alone exceeds limit.
func NextRange(sizes []int64, overhead, limit int64, start int) Range {
	r := Range{Start: start, End: start}
	for r.End < len(sizes) {
		grown := Range{Start: r.Start, End: r.End + 1}
		if Estimate(sizes, overhead, grown) > limit {
			break
		}
		r = grown
	}
	return r
}

// Plan partitions all pages into contiguous ranges in page order.
func Plan(sizes []int64, overhead, limit int64) []Range {
	var out []Range
	for start := 1; start <= len(sizes); {
		r := NextRange(sizes, overhead, limit, start)
		out = append(out, r)
		start = r.End + 1
	}
	return out
}
