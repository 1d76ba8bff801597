// Package bootinfo builds the record the bootloader hands to the kernel
// (see §4.4): it carves the fixed-size boot-info window
// (mem.BootInfoStart, mem.BootInfoSize) out of the boot allocator's
// reservation, copies the firmware memory map, selected framebuffer mode
// and loaded-kernel description into it, and maps the window through the
// bootloader's own page-table editor so the kernel can read it at the same
// virtual address after its CR3 switch.
//
// Every structure this package writes is constructed through a pointer
// reachable right now (the identity-mapped address of a freshly allocated
// frame), while every pointer field stored inside those structures holds
// the address the same bytes will be found at once the kernel's page
// tables are active -- the bump-arena-then-carve-by-hand style
// bitmap_allocator.go's setupPoolBitmaps uses for its own sub-structures.
package bootinfo

import (
	"reflect"
	"unsafe"

	wire "github.com/ktrieu/ugo-os/bootinfo"
	"github.com/ktrieu/ugo-os/bootloader/bootalloc"
	"github.com/ktrieu/ugo-os/bootloader/elfload"
	"github.com/ktrieu/ugo-os/firmware"
	"github.com/ktrieu/ugo-os/kernel"
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
	"github.com/ktrieu/ugo-os/kernel/mem/memmap"
	"github.com/ktrieu/ugo-os/kernel/mem/vmm"
)

// splitSlack is extra MemRegion capacity reserved for the up-to-two
// additional regions memmap.Map.SplitReservation can produce when it
// carves the boot allocator's reservation out of the Usable region that
// contains it.
const splitSlack = 2

// Builder assembles the boot-info record in place, handing out pages from
// the boot-info window in order.
type Builder struct {
	alloc  *bootalloc.Allocator
	editor *vmm.Editor
	next   vmm.Page

	// writePolicy converts a freshly allocated frame into a pointer this
	// builder can dereference right now, the same capability the editor
	// itself is parameterized by. The bootloader phase uses
	// vmm.IdentityPolicy; tests substitute a policy backed by ordinary
	// Go memory.
	writePolicy vmm.MappingPolicy
}

// New returns a Builder whose page cursor starts at the base of the
// boot-info window.
func New(alloc *bootalloc.Allocator, editor *vmm.Editor) *Builder {
	return &Builder{
		alloc:       alloc,
		editor:      editor,
		next:        vmm.PageFromAddr(addr.NewVirtAddr(mem.BootInfoStart)),
		writePolicy: vmm.IdentityPolicy,
	}
}

func pagesFor(bytes uint64) uint64 {
	return (bytes + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
}

// reserve maps n fresh pages at the window cursor and returns the
// identity-reachable pointer to write through now, together with the
// final kernel-virtual address the same frames carry after the handoff.
func (b *Builder) reserve(n uint64) (writePtr uintptr, finalAddr uint64, kerr *kernel.Error) {
	pages := b.next.Range(n)
	frames, err := b.editor.AllocAndMap(pages, vmm.FlagWritable|vmm.FlagNoExecute, b.alloc.RangeAllocatorFn(), b.alloc.FrameAllocatorFn())
	if err != nil {
		return 0, 0, err
	}
	b.next = b.next.Add(n)
	return b.writePolicy(frames.Start), pages.Start.Address().AsU64(), nil
}

func sliceAt(dataAddr uint64, length uint64) []wire.MemRegion {
	var hdr reflect.SliceHeader
	hdr.Data = uintptr(dataAddr)
	hdr.Len = int(length)
	hdr.Cap = int(length)
	return *(*[]wire.MemRegion)(unsafe.Pointer(&hdr))
}

// Build reserves the boot-info window, records m (after folding in the
// boot allocator's own final reservation via SplitReservation), fb and img
// into it, and returns the final kernel-virtual address of the BootInfo
// record (the value the trampoline passes to the kernel entry point after
// the CR3 switch) together with the pointer this builder itself used to
// write it, for callers that need to inspect or log the record before the
// switch happens.
func (b *Builder) Build(m *memmap.Map, fb firmware.GraphicsMode, img *elfload.Image) (finalAddr uint64, writePtr uintptr, kerr *kernel.Error) {
	elemSize := uint64(unsafe.Sizeof(wire.MemRegion{}))
	regionCapacity := uint64(len(m.Regions)) + splitSlack
	regionsWritePtr, regionsFinalAddr, err := b.reserve(pagesFor(regionCapacity * elemSize))
	if err != nil {
		return 0, 0, err
	}

	infoWritePtr, infoFinalAddr, err := b.reserve(1)
	if err != nil {
		return 0, 0, err
	}

	// Only now, after every page the boot-info record itself needs has
	// been carved out, does the boot allocator's reservation reflect its
	// final extent -- fold it into the map the kernel will actually see.
	m.SplitReservation(b.alloc.UsedRange())

	if uint64(len(m.Regions)) > regionCapacity {
		panic("bootinfo: memory map grew beyond the region table's reserved capacity")
	}

	dst := (*[1 << 20]wire.MemRegion)(unsafe.Pointer(regionsWritePtr))
	for i, r := range m.Regions {
		dst[i] = wire.MemRegion{
			Start: r.Start.Address().Raw(),
			Pages: r.Pages,
			Type:  wire.RegionType(r.Type),
		}
	}

	info := (*wire.BootInfo)(unsafe.Pointer(infoWritePtr))
	*info = wire.BootInfo{}
	info.SetRegions(sliceAt(regionsFinalAddr, uint64(len(m.Regions))))
	info.Framebuffer = wire.FramebufferInfo{
		Address: uintptr(mem.PhysMemStart) + uintptr(fb.PhysAddr),
		Format:  uint32(fb.Format),
		Stride:  fb.Stride,
		Width:   fb.Width,
		Height:  fb.Height,
	}
	info.KernelAddrs = wire.KernelAddresses{
		KernelEnd:   img.KernelEnd,
		KernelEntry: img.Entry,
		StackTop:    img.StackTop,
		StackPages:  img.StackPages,
	}

	return infoFinalAddr, infoWritePtr, nil
}
