package elfload

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
	"github.com/ktrieu/ugo-os/kernel/mem/vmm"
)

// pageAlignedBuffer carves a page-aligned slice of exactly pages*PageSize
// bytes out of a larger allocation. Load's frame arithmetic treats every
// address as real, dereferenceable memory (it only ever runs identity
// mapped, in the bootloader), so every fixture here needs real page-aligned
// backing rather than arbitrary small integers standing in for frames.
func pageAlignedBuffer(pages int) []byte {
	raw := make([]byte, (pages+1)*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&raw[0]))
	pad := (uintptr(mem.PageSize) - base%uintptr(mem.PageSize)) % uintptr(mem.PageSize)
	return raw[pad : pad+uintptr(pages)*uintptr(mem.PageSize)]
}

func frameOf(b []byte) pmm.Frame {
	return pmm.FrameFromAddr(addr.NewPhysAddr(uint64(uintptr(unsafe.Pointer(&b[0])))))
}

// bumpAlloc hands out consecutive frames from a page-aligned arena; it plays
// the role bootalloc.Allocator plays for the real bootloader, implementing
// elfload.FrameAllocator over plain test memory.
type bumpAlloc struct {
	next pmm.Frame
	end  pmm.Frame
}

func newBumpAlloc(arena []byte) *bumpAlloc {
	start := frameOf(arena)
	return &bumpAlloc{next: start, end: start.Add(uint64(len(arena)) / uint64(mem.PageSize))}
}

func (b *bumpAlloc) AllocFrame() pmm.Frame {
	if b.next >= b.end {
		panic("bumpAlloc: arena exhausted")
	}
	f := b.next
	b.next++
	return f
}

// buildELF writes a single-PT_LOAD-segment ELF64 executable into buf by
// hand: debug/elf only parses images, it has no encoder to drive from the
// other direction.
func buildELF(buf []byte, entry, vaddr, off, filesz, memsz uint64, flags uint32) {
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	binary.LittleEndian.PutUint16(buf[16:], 2)  // e_type = ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:], 62) // e_machine = EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:], 1)  // e_version
	binary.LittleEndian.PutUint64(buf[24:], entry)
	binary.LittleEndian.PutUint64(buf[32:], 64) // e_phoff
	binary.LittleEndian.PutUint64(buf[40:], 0)  // e_shoff
	binary.LittleEndian.PutUint32(buf[48:], 0)  // e_flags
	binary.LittleEndian.PutUint16(buf[52:], 64) // e_ehsize
	binary.LittleEndian.PutUint16(buf[54:], 56) // e_phentsize
	binary.LittleEndian.PutUint16(buf[56:], 1)  // e_phnum
	binary.LittleEndian.PutUint16(buf[58:], 0)  // e_shentsize
	binary.LittleEndian.PutUint16(buf[60:], 0)  // e_shnum
	binary.LittleEndian.PutUint16(buf[62:], 0)  // e_shstrndx

	const ph = 64
	binary.LittleEndian.PutUint32(buf[ph:], 1) // p_type = PT_LOAD
	binary.LittleEndian.PutUint32(buf[ph+4:], flags)
	binary.LittleEndian.PutUint64(buf[ph+8:], off)
	binary.LittleEndian.PutUint64(buf[ph+16:], vaddr)
	binary.LittleEndian.PutUint64(buf[ph+24:], vaddr) // p_paddr, unused by Load
	binary.LittleEndian.PutUint64(buf[ph+32:], filesz)
	binary.LittleEndian.PutUint64(buf[ph+40:], memsz)
	binary.LittleEndian.PutUint64(buf[ph+48:], uint64(mem.PageSize))
}

// TestLoadMapsSegmentAndHandlesBSSStraddle builds a two-page data segment
// whose BSS tail straddles the boundary between its last file-backed page
// and its first zero-fill page, the scenario the loader's file/BSS
// boundary fix-up exists for.
func TestLoadMapsSegmentAndHandlesBSSStraddle(t *testing.T) {
	const (
		pageSize = uint64(mem.PageSize)
		off      = uint64(0x1000)
		filesz   = uint64(0x1100)
		memsz    = uint64(0x2000)
		vaddr    = mem.KernelStart
	)

	blob := pageAlignedBuffer(3)
	buildELF(blob, vaddr+0x10, vaddr, off, filesz, memsz, 6 /* PF_R|PF_W */)

	// The segment's file bytes: one marker for the whole-page body, a
	// second, distinct marker for the partial tail that lands on the page
	// shared with the BSS zero-fill.
	for i := off; i < off+filesz-0x100; i++ {
		blob[i] = 0xAB
	}
	for i := off + filesz - 0x100; i < off+filesz; i++ {
		blob[i] = 0xCD
	}

	arena := pageAlignedBuffer(64)
	alloc := newBumpAlloc(arena)

	pml4 := alloc.AllocFrame()
	mem.Memset(uintptr(pml4.Address().Raw()), 0, mem.PageSize)
	editor := vmm.NewEditor(pml4, vmm.IdentityPolicy)

	img, kerr := Load(blob, editor, alloc)
	if kerr != nil {
		t.Fatalf("Load failed: %v", kerr)
	}

	if img.Entry != vaddr+0x10 {
		t.Errorf("Entry = 0x%x; want 0x%x", img.Entry, vaddr+0x10)
	}
	if img.KernelEnd != vaddr+memsz {
		t.Errorf("KernelEnd = 0x%x; want 0x%x", img.KernelEnd, vaddr+memsz)
	}
	if img.StackPages != stackPages {
		t.Errorf("StackPages = %d; want %d", img.StackPages, stackPages)
	}

	// The straddle page must hold the copied file tail followed by zeroed
	// BSS, not the fresh zero frame's initial contents throughout.
	straddlePage := vmm.PageFromAddr(addr.NewVirtAddr(vaddr + pageSize))
	_, straddleFrame, err := editor.GetEntry(straddlePage)
	if err != nil {
		t.Fatalf("GetEntry(straddle page) failed: %v", err)
	}
	content := (*[4096]byte)(unsafe.Pointer(uintptr(straddleFrame.Address().Raw())))
	for i := 0; i < 0x100; i++ {
		if content[i] != 0xCD {
			t.Fatalf("straddle page byte %d = 0x%x; want 0xCD (copied file tail)", i, content[i])
		}
	}
	for i := 0x100; i < int(pageSize); i++ {
		if content[i] != 0 {
			t.Fatalf("straddle page byte %d = 0x%x; want 0 (BSS)", i, content[i])
		}
	}

	// The segment's first page must be the original file-backed frame
	// itself -- Load maps file-backed pages in place, it never copies them.
	firstPage := vmm.PageFromAddr(addr.NewVirtAddr(vaddr))
	_, firstFrame, err := editor.GetEntry(firstPage)
	if err != nil {
		t.Fatalf("GetEntry(first page) failed: %v", err)
	}
	if firstFrame.Address().Raw() != uint64(uintptr(unsafe.Pointer(&blob[off]))) {
		t.Errorf("first page is not backed by the original file frame")
	}

	// The guard page directly below the stack must stay unmapped.
	guardPage := vmm.PageFromAddr(addr.NewVirtAddr(mem.AlignUp(img.KernelEnd, pageSize)))
	if _, _, err := editor.GetEntry(guardPage); err != vmm.ErrInvalidMapping {
		t.Errorf("guard page below the stack must be unmapped, got err = %v", err)
	}

	if img.StackTop%16 != 0 {
		t.Errorf("StackTop 0x%x is not 16-byte aligned", img.StackTop)
	}
}

func TestLoadRejectsSegmentBelowKernelStart(t *testing.T) {
	blob := pageAlignedBuffer(2)
	buildELF(blob, 0x1000, 0x1000, 0, uint64(mem.PageSize), uint64(mem.PageSize), 6)

	arena := pageAlignedBuffer(16)
	alloc := newBumpAlloc(arena)
	pml4 := alloc.AllocFrame()
	mem.Memset(uintptr(pml4.Address().Raw()), 0, mem.PageSize)
	editor := vmm.NewEditor(pml4, vmm.IdentityPolicy)

	if _, kerr := Load(blob, editor, alloc); kerr != errBadVirtAddr {
		t.Fatalf("Load() err = %v; want errBadVirtAddr", kerr)
	}
}

func TestLoadRejectsMisalignedSegment(t *testing.T) {
	blob := pageAlignedBuffer(2)
	buildELF(blob, mem.KernelStart, mem.KernelStart, 0, uint64(mem.PageSize), uint64(mem.PageSize), 6)
	binary.LittleEndian.PutUint64(blob[64+48:], 1) // corrupt p_align away from PageSize

	arena := pageAlignedBuffer(16)
	alloc := newBumpAlloc(arena)
	pml4 := alloc.AllocFrame()
	mem.Memset(uintptr(pml4.Address().Raw()), 0, mem.PageSize)
	editor := vmm.NewEditor(pml4, vmm.IdentityPolicy)

	if _, kerr := Load(blob, editor, alloc); kerr != errBadAlign {
		t.Fatalf("Load() err = %v; want errBadAlign", kerr)
	}
}
