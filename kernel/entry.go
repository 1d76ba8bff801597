package kernel

import (
	"unsafe"

	"github.com/ktrieu/ugo-os/bootinfo"
	"github.com/ktrieu/ugo-os/bootloader/bootalloc"
	"github.com/ktrieu/ugo-os/kernel/cpu"
	"github.com/ktrieu/ugo-os/kernel/heap"
	"github.com/ktrieu/ugo-os/kernel/irq"
	"github.com/ktrieu/ugo-os/kernel/kfmt/early"
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
	"github.com/ktrieu/ugo-os/kernel/mem/memmap"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
	"github.com/ktrieu/ugo-os/kernel/mem/vmm"
)

var errOutOfFrames = &Error{Module: "kernel", Message: "bitmap allocator has no free frames left"}

// Kmain is the only Go symbol the rt0 trampoline (cpu.Trampoline, run from
// the bootloader's main) jumps to. It receives the kernel-virtual address
// of the BootInfo record in RDI, exactly as §6's kernel entry ABI
// specifies; CR3 and RSP are already the bootloader-built page map and
// stack top by the time this runs.
//
// Kmain never returns. If every initialization step succeeds it drops into
// an interrupt-driven halt loop; any failure along the way is fatal and
// reported through kernel.Panic.
//
//go:noinline
func Kmain(bootInfoPtr uintptr) {
	info := (*bootinfo.BootInfo)(unsafe.Pointer(bootInfoPtr))

	irq.InitGDT()
	irq.InitIDT()

	kt := vmm.NewKernelTables()

	m := memMapFromBootInfo(info)

	pfa := bitmapAllocatorFromMemMap(m)

	initHeap(kt, pfa, info)

	installStubIRQHandlers()
	irq.InitPIC()
	cpu.EnableInterrupts()

	early.Printf("ugo-os: kernel online, %d usable regions\n", len(m.Regions))

	for {
		cpu.Halt()
	}
}

// installStubIRQHandlers installs the minimum a kernel must have before
// InitPIC unmasks IRQ0/IRQ1: Dispatch panics on any vector without a
// registered handler, so the very first timer tick would be fatal if
// interrupts were enabled with handlers[TimerVector] still nil. Both stubs
// only acknowledge the interrupt; real timer/keyboard handling is future
// work.
func installStubIRQHandlers() {
	irq.Install(irq.TimerVector, func(v irq.Vector, regs *irq.Registers) {
		irq.EOI(v)
	})
	irq.Install(irq.KeyboardVector, func(v irq.Vector, regs *irq.Registers) {
		irq.EOI(v)
	})
}

// memMapFromBootInfo reconstructs a memmap.Map from the wire-format region
// list the bootloader wrote into the boot-info record, so the kernel-phase
// allocators can be built the same way the bootloader's own were.
func memMapFromBootInfo(info *bootinfo.BootInfo) *memmap.Map {
	wireRegions := info.Regions()
	m := &memmap.Map{Regions: make([]memmap.Region, len(wireRegions))}
	for i, r := range wireRegions {
		m.Regions[i] = memmap.Region{
			Start: pmm.FrameFromAddr(addr.NewPhysAddr(r.Start)),
			Pages: r.Pages,
			Type:  memmap.RegionType(r.Type),
		}
	}
	return m
}

// bitmapAllocatorFromMemMap claims a raw frame range for the bitmap's own
// storage via a throwaway bootalloc.Allocator -- the same bump-allocation
// discipline the bootloader uses, reused here for the one bootstrap moment
// before the bitmap allocator exists to serve itself. The storage is never
// mapped as an ordinary kernel page: it is read and written exclusively
// through the direct mapping the bootloader already installed over all of
// physical memory, per §4.6's "addressable via the direct mapping" note.
func bitmapAllocatorFromMemMap(m *memmap.Map) *pmm.BitmapAllocator {
	bootstrap := bootalloc.New(m)

	requiredBytes := pmm.RequiredBytes(m)
	requiredPages := uint64(mem.Size(requiredBytes).Pages())
	storageFrames := bootstrap.AllocFrameRange(requiredPages)

	storagePtr := vmm.DirectMapPolicy(storageFrames.Start)
	storage := unsafe.Slice((*byte)(unsafe.Pointer(storagePtr)), requiredPages*uint64(mem.PageSize))

	return pmm.NewBitmapAllocator(m, storage, storageFrames)
}

// initHeap reserves heap.InitialPages of fresh kernel virtual memory
// immediately above the loaded kernel's stack top (the page range the ELF
// loader left unmapped just past the highest stack page) and hands it to
// heap.New.
func initHeap(kt *vmm.KernelTables, pfa *pmm.BitmapAllocator, info *bootinfo.BootInfo) *heap.Heap {
	allocFn := func() (pmm.Frame, *Error) {
		f, ok := pfa.AllocFrame()
		if !ok {
			return pmm.InvalidFrame, errOutOfFrames
		}
		return f, nil
	}

	heapStart := info.KernelAddrs.StackTop + 16
	startPage := vmm.PageFromAddr(addr.NewVirtAddr(heapStart))
	for i := uint64(0); i < heap.InitialPages; i++ {
		if _, err := kt.AllocAndMapPage(startPage.Add(i), vmm.DataRw, allocFn); err != nil {
			Panic(err)
		}
	}

	return heap.New(uintptr(heapStart), mem.Size(heap.InitialPages)*mem.PageSize)
}
