// Package elfload loads the loadable segments of the kernel ELF image into
// freshly mapped virtual pages, using the standard library's ELF parser
// (the one piece of this tree that reaches for an "ecosystem" package
// rather than hand-rolling a format parser the corpus has no precedent
// for) combined with the bootloader's page-table editor and boot
// allocator.
package elfload

import (
	"bytes"
	"debug/elf"
	"unsafe"

	"github.com/ktrieu/ugo-os/kernel"
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
	"github.com/ktrieu/ugo-os/kernel/mem/vmm"
)

const guardPages = 1
const stackPages = 3

var (
	errParse       = &kernel.Error{Module: "elfload", Message: "failed to parse kernel ELF image"}
	errBadAlign    = &kernel.Error{Module: "elfload", Message: "segment alignment must equal the page size"}
	errBadVirtAddr = &kernel.Error{Module: "elfload", Message: "segment virtual address is below KERNEL_START"}
)

// Image describes the outcome of loading the kernel: where it ends in
// virtual memory, its entry point, and the stack handed to it.
type Image struct {
	Entry      uint64
	KernelEnd  uint64
	StackTop   uint64
	StackPages uint64
}

// FrameAllocator is the minimal capability elfload needs from the boot
// allocator: single frames (for zero pages and stack pages) and the
// editor's own intermediate-table allocations.
type FrameAllocator interface {
	AllocFrame() pmm.Frame
}

// Load parses data as an ELF image, installs every PT_LOAD segment through
// editor, and returns the resulting image description. data must already
// be resident at a stable physical address reachable through editor's
// identity mapping policy -- the bootloader phase, before ExitBootServices.
func Load(data []byte, editor *vmm.Editor, alloc FrameAllocator) (*Image, *kernel.Error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errParse
	}

	blobPhys := uint64(uintptr(unsafe.Pointer(&data[0])))
	allocFn := func() (pmm.Frame, *kernel.Error) { return alloc.AllocFrame(), nil }

	var highestEnd uint64
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		end, err := loadSegment(prog, blobPhys, editor, allocFn)
		if err != nil {
			return nil, err
		}
		if end > highestEnd {
			highestEnd = end
		}
	}

	stackTop, err := placeStack(highestEnd, editor, allocFn)
	if err != nil {
		return nil, err
	}

	return &Image{
		Entry:      f.Entry,
		KernelEnd:  highestEnd,
		StackTop:   stackTop,
		StackPages: stackPages,
	}, nil
}

func loadSegment(prog *elf.Prog, blobPhys uint64, editor *vmm.Editor, allocFn vmm.FrameAllocatorFn) (uint64, *kernel.Error) {
	if prog.Align != uint64(mem.PageSize) {
		return 0, errBadAlign
	}
	if prog.Vaddr < mem.KernelStart {
		return 0, errBadVirtAddr
	}

	flags := vmm.FlagNoExecute
	if prog.Flags&elf.PF_X != 0 {
		flags &^= vmm.FlagNoExecute
	}
	if prog.Flags&elf.PF_W != 0 {
		flags |= vmm.FlagWritable
	}

	if prog.Filesz > 0 {
		fileFrameStart := pmm.Frame(mem.AlignDown(blobPhys+prog.Off, uint64(mem.PageSize)) >> mem.PageShift)
		fileFrameEnd := pmm.Frame(mem.AlignUp(blobPhys+prog.Off+prog.Filesz, uint64(mem.PageSize)) >> mem.PageShift)
		fileFrames := pmm.FrameRange{Start: fileFrameStart, End: fileFrameEnd}

		filePageStart := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignDown(prog.Vaddr, uint64(mem.PageSize))))
		filePageEnd := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignUp(prog.Vaddr+prog.Filesz, uint64(mem.PageSize))))
		filePages := vmm.PageRange{Start: filePageStart, End: filePageEnd}

		if err := editor.MapRange(fileFrames, filePages, flags, allocFn); err != nil {
			return 0, err
		}

		if prog.Memsz > prog.Filesz {
			if err := zeroTail(prog, fileFrames, filePages, editor, allocFn, flags); err != nil {
				return 0, err
			}
		}
	} else if prog.Memsz > 0 {
		zeroPageStart := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignDown(prog.Vaddr, uint64(mem.PageSize))))
		zeroPageEnd := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignUp(prog.Vaddr+prog.Memsz, uint64(mem.PageSize))))
		if err := zeroFreshRange(vmm.PageRange{Start: zeroPageStart, End: zeroPageEnd}, editor, allocFn, flags); err != nil {
			return 0, err
		}
	}

	return prog.Vaddr + prog.Memsz, nil
}

// zeroTail computes the zero-fill page range past the file-backed portion
// of a segment, allocates fresh frames for it, and -- when the file and
// zero ranges share a boundary page -- copies that page's partial file
// content out of the already-mapped source frame before the fresh frame
// takes over the mapping.
func zeroTail(prog *elf.Prog, fileFrames pmm.FrameRange, filePages vmm.PageRange, editor *vmm.Editor, allocFn vmm.FrameAllocatorFn, flags vmm.EntryFlag) *kernel.Error {
	zeroPageStart := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignDown(prog.Vaddr+prog.Filesz, uint64(mem.PageSize))))
	zeroPageEnd := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignUp(prog.Vaddr+prog.Memsz, uint64(mem.PageSize))))
	zeroPages := vmm.PageRange{Start: zeroPageStart, End: zeroPageEnd}
	if zeroPages.Empty() {
		return nil
	}

	straddles := filePages.End > zeroPages.Start

	page := zeroPages.Start
	for page < zeroPages.End {
		frame, err := allocFn()
		if err != nil {
			return err
		}

		mem.Memset(frameVirtAddr(frame), 0, mem.PageSize)

		if straddles && page == zeroPages.Start {
			partialLen := prog.Filesz % uint64(mem.PageSize)
			srcFrame := fileFrames.End - 1
			copyPartial(srcFrame, frame, partialLen)
		}

		if err := editor.MapPage(frame, page, flags, allocFn); err != nil {
			return err
		}
		page = page.Add(1)
	}
	return nil
}

func zeroFreshRange(pages vmm.PageRange, editor *vmm.Editor, allocFn vmm.FrameAllocatorFn, flags vmm.EntryFlag) *kernel.Error {
	page := pages.Start
	for page < pages.End {
		frame, err := allocFn()
		if err != nil {
			return err
		}
		mem.Memset(frameVirtAddr(frame), 0, mem.PageSize)
		if err := editor.MapPage(frame, page, flags, allocFn); err != nil {
			return err
		}
		page = page.Add(1)
	}
	return nil
}

// placeStack leaves a one-page guard unmapped immediately above kernelEnd
// and maps stackPages read-write pages right after it, and returns the SysV
// ABI-aligned stack top (16 bytes below the top of the highest page).
func placeStack(kernelEnd uint64, editor *vmm.Editor, allocFn vmm.FrameAllocatorFn) (uint64, *kernel.Error) {
	guardStart := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignUp(kernelEnd, uint64(mem.PageSize))))
	stackStart := guardStart.Add(guardPages)
	stackPagesRange := vmm.PageRange{Start: stackStart, End: stackStart.Add(stackPages)}

	if err := zeroFreshRange(stackPagesRange, editor, allocFn, vmm.FlagWritable|vmm.FlagNoExecute); err != nil {
		return 0, err
	}

	topAddr := stackPagesRange.End.Address().AsU64()
	return topAddr - 16, nil
}

func frameVirtAddr(f pmm.Frame) uintptr {
	return uintptr(f.Address().Raw())
}

func copyPartial(srcFrame, dstFrame pmm.Frame, n uint64) {
	src := (*[4096]byte)(unsafe.Pointer(frameVirtAddr(srcFrame)))
	dst := (*[4096]byte)(unsafe.Pointer(frameVirtAddr(dstFrame)))
	copy(dst[:n], src[:n])
}
