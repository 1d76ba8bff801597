// Package memmap describes the physical memory map produced by firmware
// and, after bootloader execution, the kernel's own memory consumption.
package memmap

import (
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
)

// RegionType classifies a Region's usability.
type RegionType uint32

const (
	// Usable regions may be claimed by the frame allocator.
	Usable RegionType = iota

	// Allocated regions are already in use (firmware ACPI tables,
	// reclaimable or not, MMIO holes reported as non-available, etc).
	Allocated

	// Bootloader regions were consumed by the bootloader's own bump
	// allocator; the kernel may not reuse them until it has copied
	// anything it still needs out of them.
	Bootloader
)

func (t RegionType) String() string {
	switch t {
	case Usable:
		return "usable"
	case Allocated:
		return "allocated"
	case Bootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

// Region describes a contiguous, page-aligned run of physical memory.
type Region struct {
	Start pmm.Frame
	Pages uint64
	Type  RegionType
}

// End returns the frame immediately past the region.
func (r Region) End() pmm.Frame {
	return r.Start.Add(r.Pages)
}

// Range returns the region's extent as a FrameRange.
func (r Region) Range() pmm.FrameRange {
	return pmm.FrameRange{Start: r.Start, End: r.End()}
}

// Map is a finite, sorted, non-overlapping sequence of regions covering the
// physical address space of interest. Callers build a Map with Insert and
// Coalesce rather than constructing the slice directly, so the sortedness
// and non-overlap invariants always hold.
type Map struct {
	Regions []Region
}

// Insert adds region in sorted position. It does not merge or split
// existing regions; callers that feed in firmware descriptors one at a time
// should follow up with Coalesce.
func (m *Map) Insert(region Region) {
	i := 0
	for i < len(m.Regions) && m.Regions[i].Start < region.Start {
		i++
	}
	m.Regions = append(m.Regions, Region{})
	copy(m.Regions[i+1:], m.Regions[i:])
	m.Regions[i] = region
}

// Coalesce merges adjacent, same-typed regions in place. The map must
// already be sorted by Start, which Insert guarantees.
func (m *Map) Coalesce() {
	if len(m.Regions) == 0 {
		return
	}

	merged := m.Regions[:1]
	for _, r := range m.Regions[1:] {
		last := &merged[len(merged)-1]
		if last.Type == r.Type && last.End() == r.Start {
			last.Pages += r.Pages
			continue
		}
		merged = append(merged, r)
	}
	m.Regions = merged
}

// HighestFrame returns the frame immediately past the highest frame covered
// by any region, used to size the kernel's bitmap allocator.
func (m *Map) HighestFrame() pmm.Frame {
	var highest pmm.Frame
	for _, r := range m.Regions {
		if end := r.End(); end > highest {
			highest = end
		}
	}
	return highest
}

// VisitType calls fn for every region whose type matches typ, in order.
func (m *Map) VisitType(typ RegionType, fn func(Region)) {
	for _, r := range m.Regions {
		if r.Type == typ {
			fn(r)
		}
	}
}

// SplitReservation carves a bootloader reservation out of the Usable region
// that contains it, producing a Usable prefix (if non-empty), a Bootloader
// region covering the reservation, and a Usable suffix (if non-empty). It
// panics if reservation is not fully contained within a single Usable
// region -- a programming error, since the bootloader only ever reserves
// out of a region it selected itself.
func (m *Map) SplitReservation(reservation pmm.FrameRange) {
	for i, r := range m.Regions {
		if r.Type != Usable || !(reservation.Start >= r.Start && reservation.End <= r.End()) {
			continue
		}

		var replacement []Region
		if reservation.Start > r.Start {
			replacement = append(replacement, Region{
				Start: r.Start,
				Pages: uint64(reservation.Start - r.Start),
				Type:  Usable,
			})
		}
		replacement = append(replacement, Region{
			Start: reservation.Start,
			Pages: reservation.Len(),
			Type:  Bootloader,
		})
		if reservation.End < r.End() {
			replacement = append(replacement, Region{
				Start: reservation.End,
				Pages: uint64(r.End() - reservation.End),
				Type:  Usable,
			})
		}

		m.Regions = append(m.Regions[:i], append(replacement, m.Regions[i+1:]...)...)
		return
	}
	panic("memmap: reservation is not contained within a single usable region")
}

// FromByteRange constructs a Region from a firmware-reported byte range,
// rounding the start up and the end down to page boundaries exactly as the
// boot-time allocators do.
func FromByteRange(physStart, length uint64, typ RegionType) Region {
	start := mem.AlignUp(physStart, uint64(mem.PageSize))
	end := mem.AlignDown(physStart+length, uint64(mem.PageSize))
	if end < start {
		end = start
	}
	return Region{
		Start: pmm.Frame(start >> mem.PageShift),
		Pages: (end - start) >> mem.PageShift,
		Type:  typ,
	}
}
