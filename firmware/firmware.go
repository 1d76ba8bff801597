// Package firmware declares the boundary between the bootloader core and
// the UEFI services it runs on top of: a sorted memory map, a way to open
// the kernel image by name, and a way to select a graphics mode. Concrete
// implementations (UEFI boot services calls) live outside this module's
// scope; the core only depends on these interfaces so it can be exercised
// against fakes in tests.
package firmware

import "github.com/ktrieu/ugo-os/kernel/mem/memmap"

// KernelImageName is the fixed filename the bootloader looks up on the
// boot volume.
const KernelImageName = "ugo-os.elf"

// MemoryMapProvider reports the firmware's view of physical memory as a
// sorted, non-overlapping sequence of descriptors. UEFI requires this map
// to be re-fetched immediately before ExitBootServices, since any boot
// services call can change it; callers should treat a MemoryMapProvider as
// single-use per handoff attempt.
type MemoryMapProvider interface {
	MemoryMap() (memmap.Map, *MapKey, error)
}

// MapKey identifies a specific snapshot of the firmware memory map, as
// required by UEFI's ExitBootServices contract (the key must match the
// most recent GetMemoryMap call or the exit call is rejected).
type MapKey struct {
	Value uintptr
}

// KernelFileOpener opens a file on the boot volume and returns its
// contents as a byte slice backed by firmware-owned or boot allocator
// memory. The bootloader uses this exactly once, to load KernelImageName.
type KernelFileOpener interface {
	OpenFile(name string) ([]byte, error)
}

// PixelFormat identifies a framebuffer's memory layout. BGRX32 is the only
// format the core supports; a GraphicsModeSelector that cannot produce it
// should return an error rather than a mode in another format.
type PixelFormat uint32

// BGRX32 is a 32-bit-per-pixel format with blue, green, red occupying the
// low three bytes and the top byte unused.
const BGRX32 PixelFormat = 0

// GraphicsMode describes a framebuffer the firmware has already set up.
type GraphicsMode struct {
	PhysAddr uintptr
	Format   PixelFormat
	Stride   uintptr
	Width    uintptr
	Height   uintptr
}

// GraphicsModeSelector picks and activates a framebuffer mode.
type GraphicsModeSelector interface {
	SelectMode() (GraphicsMode, error)
}
