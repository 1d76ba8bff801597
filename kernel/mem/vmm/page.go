package vmm

import (
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
)

// Page identifies a page-aligned, page-sized block of virtual memory by its
// page number (virtual address divided by mem.PageSize).
type Page uint64

// PageFromAddr returns the Page containing virt. virt must already be
// page-aligned; Address is the inverse of PageFromAddr.
func PageFromAddr(virt addr.VirtAddr) Page {
	if !virt.IsAligned(uint64(mem.PageSize)) {
		panic("vmm: page address is not page-aligned")
	}
	return Page(virt.AsU64() >> mem.PageShift)
}

// PageFromFloorAddr rounds virtAddr down to the page that contains it and
// returns the corresponding Page, regardless of alignment.
func PageFromFloorAddr(virtAddr addr.VirtAddr) Page {
	return PageFromAddr(virtAddr.AlignDown(uint64(mem.PageSize)))
}

// Address returns the virtual address of the first byte of this page.
func (p Page) Address() addr.VirtAddr {
	return addr.NewVirtAddr(uint64(p) << mem.PageShift)
}

// Add returns the page n pages after p.
func (p Page) Add(n uint64) Page {
	return p + Page(n)
}

// Range returns the half-open page range [p, p+count).
func (p Page) Range(count uint64) PageRange {
	return PageRange{Start: p, End: p + Page(count)}
}
