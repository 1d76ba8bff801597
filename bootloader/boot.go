// Package bootloader drives the bootloader-phase sequence end to end: it
// discovers physical memory through the firmware interfaces, builds a
// fresh page map from scratch while the firmware's own identity mapping is
// still active, loads the kernel ELF image into it, and assembles the
// boot-info record the kernel reads after the handoff. Everything here runs
// before cpu.Trampoline performs the CR3 switch; main() (the UEFI
// application entry point, outside this module's scope) is expected to
// call Boot and then jump through cpu.Trampoline with the values it
// returns.
package bootloader

import (
	"reflect"

	"github.com/ktrieu/ugo-os/bootloader/bootalloc"
	bibuilder "github.com/ktrieu/ugo-os/bootloader/bootinfo"
	"github.com/ktrieu/ugo-os/bootloader/elfload"
	"github.com/ktrieu/ugo-os/firmware"
	"github.com/ktrieu/ugo-os/kernel"
	"github.com/ktrieu/ugo-os/kernel/cpu"
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/addr"
	"github.com/ktrieu/ugo-os/kernel/mem/memmap"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
	"github.com/ktrieu/ugo-os/kernel/mem/vmm"
)

// Entry is the handoff state main() passes to cpu.Trampoline once Boot
// returns: a fresh CR3, the kernel's stack pointer, and its ELF entry
// point. BootInfoAddr is the kernel-virtual address of the boot-info
// record, already valid in the page map CR3 will install -- the kernel
// reads it out of RDI, which main() must load with this value before the
// jump.
type Entry struct {
	CR3          uintptr
	StackTop     uintptr
	KernelEntry  uintptr
	BootInfoAddr uintptr
}

// TrampolineFnAddr returns the address of cpu.Trampoline's own code, the
// one function that must remain executable across the CR3 load it
// performs. main() has no other way to obtain a bare code pointer to an
// assembly-only declared function; reflect.ValueOf(fn).Pointer() is the
// standard library's documented way to recover it.
func TrampolineFnAddr() uintptr {
	return reflect.ValueOf(cpu.Trampoline).Pointer()
}

// framesPerGiB is the number of 4 KiB frames in one 1 GiB huge page.
const framesPerGiB = uint64(mem.HugePageSize / mem.PageSize)

// Boot builds a fresh PML4 (identity-addressable, since the firmware's own
// identity mapping of low memory is still active), direct-maps all
// physical memory described by the firmware's memory map, identity-maps
// the trampoline, loads the kernel ELF image, and assembles the boot-info
// record. It never switches CR3 itself -- that instant belongs entirely to
// cpu.Trampoline, run from main() once every mapping this function installs
// is in place.
func Boot(mmProvider firmware.MemoryMapProvider, opener firmware.KernelFileOpener, gfx firmware.GraphicsModeSelector) (Entry, *kernel.Error) {
	fwMap, _, err := mmProvider.MemoryMap()
	if err != nil {
		panic(err)
	}

	alloc := bootalloc.New(&fwMap)

	pml4 := alloc.AllocFrame()
	mem.Memset(uintptr(pml4.Address().Raw()), 0, mem.PageSize)
	editor := vmm.NewEditor(pml4, vmm.IdentityPolicy)

	if kerr := directMapPhysicalMemory(&fwMap, editor, alloc); kerr != nil {
		return Entry{}, kerr
	}

	if kerr := editor.IdentityMapFn(TrampolineFnAddr(), alloc.FrameAllocatorFn()); kerr != nil {
		return Entry{}, kerr
	}

	kernelData, ferr := opener.OpenFile(firmware.KernelImageName)
	if ferr != nil {
		panic(ferr)
	}
	img, kerr := elfload.Load(kernelData, editor, alloc)
	if kerr != nil {
		return Entry{}, kerr
	}

	mode, merr := gfx.SelectMode()
	if merr != nil {
		panic(merr)
	}

	builder := bibuilder.New(alloc, editor)
	bootInfoAddr, _, kerr := builder.Build(&fwMap, mode, img)
	if kerr != nil {
		return Entry{}, kerr
	}

	return Entry{
		CR3:          uintptr(pml4.Address().Raw()),
		StackTop:     uintptr(img.StackTop),
		KernelEntry:  uintptr(img.Entry),
		BootInfoAddr: uintptr(bootInfoAddr),
	}, nil
}

// directMapPhysicalMemory installs virt = phys + PhysMemStart for every
// frame below the firmware map's highest reported frame (see §3.5),
// splitting the range into a small-page prefix, a 1 GiB huge-page-mapped
// middle, and a small-page suffix around the first and last GiB boundaries
// (§8 huge-page carve scenario).
func directMapPhysicalMemory(m *memmap.Map, editor *vmm.Editor, alloc *bootalloc.Allocator) *kernel.Error {
	frames := pmm.FrameRange{Start: 0, End: m.HighestFrame()}
	prefix, middle, suffix := frames.SplitAt(framesPerGiB)

	if err := mapSmallDirect(prefix, editor, alloc); err != nil {
		return err
	}
	if !middle.Empty() {
		pages := directPagesFor(middle)
		if err := editor.DirectMapHugeRange(middle, pages, alloc.FrameAllocatorFn()); err != nil {
			return err
		}
	}
	return mapSmallDirect(suffix, editor, alloc)
}

func directPagesFor(frames pmm.FrameRange) vmm.PageRange {
	virtStart := addr.NewVirtAddr(frames.Start.Address().Raw() + mem.PhysMemStart)
	start := vmm.PageFromAddr(virtStart)
	return vmm.PageRange{Start: start, End: start.Add(frames.Len())}
}

func mapSmallDirect(frames pmm.FrameRange, editor *vmm.Editor, alloc *bootalloc.Allocator) *kernel.Error {
	if frames.Empty() {
		return nil
	}
	pages := directPagesFor(frames)
	return editor.MapRange(frames, pages, vmm.FlagWritable|vmm.FlagNoExecute, alloc.FrameAllocatorFn())
}
