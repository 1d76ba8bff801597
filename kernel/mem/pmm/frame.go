// Package pmm contains the physical-frame value type and the allocators
// that hand frames out during the bootloader and kernel phases.
package pmm

import (
	"math"

	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
)

// Frame identifies a page-aligned, page-sized block of physical memory by
// its page number (physical address divided by mem.PageSize).
type Frame uint64

// InvalidFrame is returned by allocators that failed to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// FrameFromAddr returns the Frame containing phys. phys must already be
// page-aligned; Address is the inverse of FrameFromAddr.
func FrameFromAddr(phys addr.PhysAddr) Frame {
	if !phys.IsAligned(uint64(mem.PageSize)) {
		panic("pmm: frame address is not page-aligned")
	}
	return Frame(phys.Raw() >> mem.PageShift)
}

// Address returns the physical address of the first byte of this frame.
func (f Frame) Address() addr.PhysAddr {
	return addr.NewPhysAddr(uint64(f) << mem.PageShift)
}

// Valid reports whether f was returned by a successful allocation.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Add returns the frame n frames after f.
func (f Frame) Add(n uint64) Frame {
	return f + Frame(n)
}

// Range returns the half-open frame range [f, f+count).
func (f Frame) Range(count uint64) FrameRange {
	return FrameRange{Start: f, End: f + Frame(count)}
}
