package vmm

import (
	"github.com/ktrieu/ugo-os/kernel"
	"github.com/ktrieu/ugo-os/kernel/cpu"
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
)

// ErrHugePageWalk is returned when a kernel-phase walk lands in a region
// covered by a PDPT huge-page entry -- the direct mapping itself is built
// this way, so any attempt to fine-grain-map inside it is a design
// invariant violation, not a recoverable condition.
var ErrHugePageWalk = &kernel.Error{Module: "vmm", Message: "walk landed in a huge-page-covered region"}

// MappingType selects the flag combination installed for a leaf mapping
// through KernelTables. Only DataRw is defined for the early kernel; other
// types (read-only data, executable code outside the loaded kernel image)
// are left as future extensions per §4.5.
type MappingType uint8

// DataRw is the only mapping type the early kernel exposes: present,
// writable, no-execute.
const DataRw MappingType = iota

func (t MappingType) flags() EntryFlag {
	switch t {
	case DataRw:
		return FlagWritable | FlagNoExecute
	default:
		panic("vmm: unknown MappingType")
	}
}

// KernelTables lets the kernel continue editing the page tables the
// bootloader built, without re-creating them. It wraps the very same
// Editor from §4.1, bound to DirectMapPolicy: bootloader and kernel differ
// only in which policy they supply to the walk, never in the walk itself.
type KernelTables struct {
	editor *Editor
}

// activePDTFn reads the currently active page table root (CR3). It is a
// function-variable seam rather than a direct call to cpu.ActivePDT so
// tests can substitute a fake root without depending on privileged
// instructions, mirroring the teacher's mapFn/reserveRegionFn test seams.
var activePDTFn = cpu.ActivePDT

// NewKernelTables reads CR3 to find the currently active PML4 and returns a
// KernelTables over it, addressed through the direct mapping. It panics if
// CR3 does not hold a page-aligned address, which would indicate the
// bootloader handed off a corrupt page table root.
func NewKernelTables() *KernelTables {
	return newKernelTablesFromRoot(activePDTFn())
}

func newKernelTablesFromRoot(cr3 uintptr) *KernelTables {
	if cr3%uintptr(mem.PageSize) != 0 {
		panic("vmm: CR3 is not page-aligned")
	}
	pml4 := pmm.Frame(uint64(cr3) >> mem.PageShift)
	return &KernelTables{editor: NewEditor(pml4, DirectMapPolicy)}
}

// GetEntry walks to page and returns its leaf entry's flags and frame. It
// short-circuits with ErrHugePageWalk on a PDPT-level huge-page entry
// before it ever reaches the PT level.
func (k *KernelTables) GetEntry(page Page) (EntryFlag, pmm.Frame, *kernel.Error) {
	flags, frame, err := k.editor.GetEntry(page)
	if err == ErrHugePageConflict {
		return 0, pmm.InvalidFrame, ErrHugePageWalk
	}
	return flags, frame, err
}

// AllocAndMapPage allocates a single frame from alloc and maps it at page
// with the flags for typ, installing any missing intermediate tables via
// the same allocator. A walk that lands in a huge-page-covered region (the
// huge-page part of the direct mapping) is a design invariant violation and
// panics rather than returning an error.
func (k *KernelTables) AllocAndMapPage(page Page, typ MappingType, alloc FrameAllocatorFn) (pmm.Frame, *kernel.Error) {
	frame, err := alloc()
	if err != nil {
		return pmm.InvalidFrame, err
	}
	if err := k.editor.MapPage(frame, page, typ.flags(), alloc); err != nil {
		if err == ErrHugePageConflict {
			panic("vmm: AllocAndMapPage walked into a huge-page-covered region")
		}
		return pmm.InvalidFrame, err
	}
	return frame, nil
}
