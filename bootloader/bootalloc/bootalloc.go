// Package bootalloc implements the bootloader-phase bump frame allocator:
// a single contiguous reservation carved out of one firmware-reported
// Usable region, served one frame (or one contiguous run) at a time.
package bootalloc

import (
	"github.com/ktrieu/ugo-os/kernel"
	"github.com/ktrieu/ugo-os/kernel/mem/memmap"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
)

// minReservationPages is the smallest Usable region the allocator will
// accept: 256 pages, 1 MiB at 4 KiB pages -- see spec construction rule.
const minReservationPages = 256

var errOutOfMemory = &kernel.Error{Module: "bootalloc", Message: "boot allocator is out of memory"}

// Allocator is a bump allocator over a single contiguous reservation. It
// never frees; by the time the kernel takes over, every frame it handed
// out is reported to the kernel as a single Bootloader-typed region, and
// whatever remains in the reservation reverts to Usable.
type Allocator struct {
	start pmm.Frame
	next  pmm.Frame
	end   pmm.Frame
}

// New selects the first Usable region in m with at least minReservationPages
// pages and reserves it in full. It panics if no such region exists: the
// bootloader cannot make progress without one.
func New(m *memmap.Map) *Allocator {
	for _, r := range m.Regions {
		if r.Type == memmap.Usable && r.Pages >= minReservationPages {
			return &Allocator{start: r.Start, next: r.Start, end: r.End()}
		}
	}
	panic("bootalloc: no usable region large enough for the boot reservation")
}

// AllocFrame returns the next frame in the reservation, panicking if the
// reservation is exhausted -- boot-phase allocation failure is always
// fatal, per the error taxonomy.
func (a *Allocator) AllocFrame() pmm.Frame {
	f, err := a.tryAllocFrame()
	if err != nil {
		panic(err)
	}
	return f
}

func (a *Allocator) tryAllocFrame() (pmm.Frame, *kernel.Error) {
	if a.next >= a.end {
		return pmm.InvalidFrame, errOutOfMemory
	}
	f := a.next
	a.next = a.next.Add(1)
	return f, nil
}

// AllocFrameRange reserves n consecutive frames, equivalent to n calls to
// AllocFrame.
func (a *Allocator) AllocFrameRange(n uint64) pmm.FrameRange {
	start := a.next
	for i := uint64(0); i < n; i++ {
		a.AllocFrame()
	}
	return pmm.FrameRange{Start: start, End: a.next}
}

// FrameAllocatorFn adapts the allocator to the vmm.FrameAllocatorFn shape
// used by the page-table editor to materialize intermediate tables.
func (a *Allocator) FrameAllocatorFn() func() (pmm.Frame, *kernel.Error) {
	return a.tryAllocFrame
}

// RangeAllocatorFn adapts the allocator to vmm.RangeAllocatorFn, used by
// Editor.AllocAndMap.
func (a *Allocator) RangeAllocatorFn() func(uint64) (pmm.FrameRange, *kernel.Error) {
	return func(n uint64) (pmm.FrameRange, *kernel.Error) {
		start := a.next
		for i := uint64(0); i < n; i++ {
			if _, err := a.tryAllocFrame(); err != nil {
				return pmm.FrameRange{}, err
			}
		}
		return pmm.FrameRange{Start: start, End: a.next}, nil
	}
}

// ReservedRange returns the full reservation, for reporting to the boot-info
// builder.
func (a *Allocator) ReservedRange() pmm.FrameRange {
	return pmm.FrameRange{Start: a.start, End: a.end}
}

// UsedRange returns the portion of the reservation actually handed out so
// far; the boot-info builder reports this as Bootloader-typed and returns
// the remainder of ReservedRange to Usable.
func (a *Allocator) UsedRange() pmm.FrameRange {
	return pmm.FrameRange{Start: a.start, End: a.next}
}
