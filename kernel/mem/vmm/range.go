package vmm

import "github.com/ktrieu/ugo-os/kernel/mem"

// PageRange is a half-open [Start, End) sequence of pages.
type PageRange struct {
	Start, End Page
}

// Len returns the number of pages in the range.
func (r PageRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Empty reports whether the range contains no pages.
func (r PageRange) Empty() bool {
	return r.Len() == 0
}

// Contains reports whether p lies within the range.
func (r PageRange) Contains(p Page) bool {
	return p >= r.Start && p < r.End
}

// Visit calls fn once for every page in the range, in order.
func (r PageRange) Visit(fn func(Page)) {
	for p := r.Start; p < r.End; p++ {
		fn(p)
	}
}

// SplitAt splits the range into a prefix before unit, an aligned middle of
// whole unit-sized blocks, and a suffix, where unit is expressed as a page
// count. Any of the three sub-ranges may be empty.
func (r PageRange) SplitAt(unit uint64) (prefix, middle, suffix PageRange) {
	prefixEnd, middleEnd := mem.SplitAligned(uint64(r.Start), uint64(r.End), unit)
	return PageRange{r.Start, Page(prefixEnd)},
		PageRange{Page(prefixEnd), Page(middleEnd)},
		PageRange{Page(middleEnd), r.End}
}
