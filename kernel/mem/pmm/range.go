package pmm

import "github.com/ktrieu/ugo-os/kernel/mem"

// FrameRange is a half-open [Start, End) sequence of frames.
type FrameRange struct {
	Start, End Frame
}

// Len returns the number of frames in the range.
func (r FrameRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Empty reports whether the range contains no frames.
func (r FrameRange) Empty() bool {
	return r.Len() == 0
}

// Contains reports whether f lies within the range.
func (r FrameRange) Contains(f Frame) bool {
	return f >= r.Start && f < r.End
}

// Visit calls fn once for every frame in the range, in order.
func (r FrameRange) Visit(fn func(Frame)) {
	for f := r.Start; f < r.End; f++ {
		fn(f)
	}
}

// SplitAt splits the range into a prefix before unit, an aligned middle of
// whole unit-sized blocks, and a suffix, where unit is expressed as a frame
// count (e.g. mem.HugePageSize / mem.PageSize for a 1 GiB alignment
// boundary). Any of the
// three sub-ranges may be empty.
func (r FrameRange) SplitAt(unit uint64) (prefix, middle, suffix FrameRange) {
	prefixEnd, middleEnd := mem.SplitAligned(uint64(r.Start), uint64(r.End), unit)
	return FrameRange{r.Start, Frame(prefixEnd)},
		FrameRange{Frame(prefixEnd), Frame(middleEnd)},
		FrameRange{Frame(middleEnd), r.End}
}
