// Package vmm implements the multi-level page-table editor (see §4.1): a
// single walk/insert implementation shared by the bootloader's identity-
// mapped editor and the kernel's direct-mapped editor, parameterized by a
// MappingPolicy capability rather than by an interface or inheritance.
package vmm

import (
	"unsafe"

	"github.com/ktrieu/ugo-os/kernel"
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
)

var (
	// ErrHugePageConflict is returned (and turned into a panic by
	// KernelTables.AllocAndMapPage) when a walk would need to descend into
	// or fragment an existing huge-page mapping.
	ErrHugePageConflict = &kernel.Error{Module: "vmm", Message: "cannot map into a huge-page-covered region"}

	// ErrRangeLengthMismatch is returned by MapRange when the frame and
	// page ranges supplied do not have equal length.
	ErrRangeLengthMismatch = &kernel.Error{Module: "vmm", Message: "frame range and page range must have equal length"}

	// ErrInvalidMapping is returned when looking up a virtual address
	// that has no present leaf entry.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// FrameAllocatorFn allocates a single physical frame, used by the editor to
// materialize missing intermediate page tables on demand.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// RangeAllocatorFn allocates a contiguous run of count physical frames,
// used by AllocAndMap to back a freshly mapped page range.
type RangeAllocatorFn func(count uint64) (pmm.FrameRange, *kernel.Error)

// Editor mutates a single PML4 and everything reachable from it. The walk
// logic is identical regardless of phase; only the policy converting a
// frame to a dereferenceable pointer differs.
type Editor struct {
	pml4   pmm.Frame
	policy MappingPolicy
}

// NewEditor returns an Editor over an already-allocated, already-zeroed
// PML4 frame. Callers that need a fresh page map should allocate a frame,
// map it via their own policy, zero it with mem.Memset, and pass it here;
// the editor itself never decides where the PML4 lives.
func NewEditor(pml4 pmm.Frame, policy MappingPolicy) *Editor {
	return &Editor{pml4: pml4, policy: policy}
}

// PML4Frame returns the physical frame backing this editor's top-level
// table, for installing into CR3.
func (e *Editor) PML4Frame() pmm.Frame {
	return e.pml4
}

func (e *Editor) tableAt(f pmm.Frame) *table {
	return (*table)(unsafe.Pointer(e.policy(f)))
}

// walkEntry performs a 4-level page table walk for virt, invoking visit
// with the entry at each level. Missing intermediate tables are allocated
// on demand via allocFn, zeroed, and installed as present/writable/
// executable entries. If visit returns false the walk stops early. Landing
// on a huge-page entry before the PT level aborts the walk and returns
// ErrHugePageConflict.
func (e *Editor) walkEntry(virt uint64, allocFn FrameAllocatorFn, visit func(level level, ent *entry) bool) *kernel.Error {
	pml4Idx := (virt >> 39) & 0x1ff
	pdptIdx := (virt >> 30) & 0x1ff
	pdIdx := (virt >> 21) & 0x1ff
	ptIdx := (virt >> 12) & 0x1ff

	tbl := e.tableAt(e.pml4)
	for lvl := levelPML4; ; lvl++ {
		idx := lvl.indexFor(pml4Idx, pdptIdx, pdIdx, ptIdx)
		ent := &tbl[idx]

		if lvl.isLeafLevel() {
			visit(lvl, ent)
			return nil
		}

		if ent.HasFlags(FlagHugePage) {
			return ErrHugePageConflict
		}

		if !ent.HasFlags(FlagPresent) {
			newFrame, err := allocFn()
			if err != nil {
				return err
			}
			next := e.tableAt(newFrame)
			mem.Memset(uintptr(unsafe.Pointer(next)), 0, mem.PageSize)
			ent.setIntermediate(newFrame)
		}

		if !visit(lvl, ent) {
			return nil
		}

		tbl = e.tableAt(ent.Frame())
	}
}

// GetEntry returns, by value, the leaf entry mapping page, or
// ErrInvalidMapping if the walk encounters a missing intermediate table or
// a missing leaf. Intermediate tables are never allocated by a lookup.
func (e *Editor) GetEntry(page Page) (EntryFlag, pmm.Frame, *kernel.Error) {
	var (
		found     bool
		leafFlags EntryFlag
		leafFrame pmm.Frame
		missing   = &kernel.Error{Module: "vmm", Message: "missing intermediate page table"}
	)

	err := e.walkEntry(page.Address().AsU64(), func() (pmm.Frame, *kernel.Error) {
		return pmm.InvalidFrame, missing
	}, func(lvl level, ent *entry) bool {
		if lvl.isLeafLevel() {
			if !ent.HasFlags(FlagPresent) {
				return false
			}
			found = true
			leafFrame = ent.Frame()
			leafFlags = EntryFlag(*ent) &^ EntryFlag(frameAddrMask)
			return true
		}
		return ent.HasFlags(FlagPresent)
	})
	if err != nil {
		if err == missing {
			return 0, pmm.InvalidFrame, ErrInvalidMapping
		}
		return 0, pmm.InvalidFrame, err
	}
	if !found {
		return 0, pmm.InvalidFrame, ErrInvalidMapping
	}
	return leafFlags, leafFrame, nil
}

// MapPage installs a leaf mapping from page to frame with the given flags,
// allocating any missing intermediate tables via allocFn. The leaf is only
// written once every intermediate entry on its path has been marked
// present, per the editor's ordering invariant.
func (e *Editor) MapPage(frame pmm.Frame, page Page, flags EntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	return e.walkEntry(page.Address().AsU64(), allocFn, func(lvl level, ent *entry) bool {
		if lvl.isLeafLevel() {
			ent.setLeaf(frame, flags)
			return true
		}
		return true
	})
}

// MapRange maps each frame in frames to the corresponding page in pages.
// The two ranges must have equal length.
func (e *Editor) MapRange(frames pmm.FrameRange, pages PageRange, flags EntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	if frames.Len() != pages.Len() {
		return ErrRangeLengthMismatch
	}

	frame, page := frames.Start, pages.Start
	for page < pages.End {
		if err := e.MapPage(frame, page, flags, allocFn); err != nil {
			return err
		}
		frame, page = frame.Add(1), page.Add(1)
	}
	return nil
}

// AllocAndMap allocates a contiguous run of frames covering pages and maps
// it with the given flags, returning the frames it allocated.
func (e *Editor) AllocAndMap(pages PageRange, flags EntryFlag, rangeAlloc RangeAllocatorFn, allocFn FrameAllocatorFn) (pmm.FrameRange, *kernel.Error) {
	frames, err := rangeAlloc(pages.Len())
	if err != nil {
		return pmm.FrameRange{}, err
	}
	if err := e.MapRange(frames, pages, flags, allocFn); err != nil {
		return pmm.FrameRange{}, err
	}
	return frames, nil
}

// DirectMapHugeRange installs a single PDPT-level huge-page entry per 1 GiB
// of frames and pages. Both ranges must already be 1 GiB-aligned runs of
// equal, GiB-multiple length; callers split an arbitrary range with
// pmm.FrameRange.SplitAt/PageRange.SplitAt first and call this only on the
// aligned middle.
func (e *Editor) DirectMapHugeRange(frames pmm.FrameRange, pages PageRange, allocFn FrameAllocatorFn) *kernel.Error {
	if frames.Len() != pages.Len() {
		return ErrRangeLengthMismatch
	}
	const framesPerGib = uint64(mem.HugePageSize / mem.PageSize)

	frame, page := frames.Start, pages.Start
	for page < pages.End {
		virt := page.Address().AsU64()
		pml4Idx := (virt >> 39) & 0x1ff
		pdptIdx := (virt >> 30) & 0x1ff

		tbl := e.tableAt(e.pml4)
		pml4Ent := &tbl[pml4Idx]
		if !pml4Ent.HasFlags(FlagPresent) {
			newFrame, err := allocFn()
			if err != nil {
				return err
			}
			next := e.tableAt(newFrame)
			mem.Memset(uintptr(unsafe.Pointer(next)), 0, mem.PageSize)
			pml4Ent.setIntermediate(newFrame)
		} else if pml4Ent.HasFlags(FlagHugePage) {
			return ErrHugePageConflict
		}

		pdpt := e.tableAt(pml4Ent.Frame())
		pdptEnt := &pdpt[pdptIdx]
		*pdptEnt = 0
		pdptEnt.SetFrame(frame)
		pdptEnt.SetFlags(FlagPresent | FlagWritable | FlagNoExecute | FlagHugePage)

		frame, page = frame.Add(framesPerGib), page.Add(framesPerGib)
	}
	return nil
}

// IdentityMapFn identity-maps the two pages spanning the code at fnPtr,
// which must remain executable across a CR3 swap (the trampoline). It
// installs present/writable/executable mappings -- the trampoline's own
// three instructions are the only thing ever run from these pages.
func (e *Editor) IdentityMapFn(fnPtr uintptr, allocFn FrameAllocatorFn) *kernel.Error {
	page := PageFromFloorAddr(addr.NewVirtAddr(uint64(fnPtr)))
	frame := pmm.Frame(uint64(page))
	pages := PageRange{Start: page, End: page.Add(2)}
	frames := pmm.FrameRange{Start: frame, End: frame.Add(2)}
	return e.MapRange(frames, pages, FlagWritable, allocFn)
}
