package mem

// SplitAligned breaks the half-open index range [start, end) into a prefix,
// an aligned middle and a suffix relative to a boundary expressed in the
// same index units as start/end (e.g. frame or page counts). The middle
// sub-range is the largest sub-range of [start, end) whose bounds are both
// multiples of unit; it may be empty if the range is narrower than one unit
// or straddles no boundary.
func SplitAligned(start, end, unit uint64) (prefixEnd, middleEnd uint64) {
	alignedStart := AlignUp(start, unit)
	if alignedStart > end {
		alignedStart = end
	}
	alignedEnd := AlignDown(end, unit)
	if alignedEnd < alignedStart {
		alignedEnd = alignedStart
	}
	return alignedStart, alignedEnd
}
