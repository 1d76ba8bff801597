// Package bootinfo defines the record handed from the bootloader to the
// kernel: the wire format both sides of the handoff agree on. Every
// pointer field is expressed in the kernel's final virtual address space,
// since the kernel reads this record only after the direct mapping (and
// its own page tables) are fully installed.
package bootinfo

import (
	"reflect"
	"unsafe"
)

// RegionType mirrors memmap.RegionType's encoding; duplicated here rather
// than imported so this package's wire layout never shifts underneath an
// unrelated change to the in-kernel memmap representation.
type RegionType uint32

const (
	Usable RegionType = iota
	Allocated
	Bootloader
)

// MemRegion is the wire form of a memmap.Region: a physical start address
// (not a frame number, since the kernel reading this record has not yet
// necessarily reconstructed a pmm.Frame type for it), a page count, and a
// type tag.
type MemRegion struct {
	Start uint64
	Pages uint64
	Type  RegionType
}

// FramebufferInfo describes the selected graphics mode, already patched to
// a kernel virtual address by the boot-info builder.
type FramebufferInfo struct {
	Address uintptr
	Format  uint32
	Stride  uintptr
	Width   uintptr
	Height  uintptr
}

// KernelAddresses records the loaded kernel image's span and entry state.
type KernelAddresses struct {
	KernelEnd   uint64
	KernelEntry uint64
	StackTop    uint64
	StackPages  uint64
}

// memRegionList is the packed {ptr, len} pair the spec's C ABI calls for,
// kept distinct from a Go slice header so the on-the-wire layout never
// grows a cap field.
type memRegionList struct {
	ptr *MemRegion
	len uint64
}

// BootInfo is the record placed in the boot-info window that begins at
// BOOTINFO_START, after the region array. It carries no version field.
// Field order matches the wire layout; the bootloader writes it in place inside the
// boot-info arena and the kernel reads it directly through RDI.
type BootInfo struct {
	regions     memRegionList
	Framebuffer FramebufferInfo
	KernelAddrs KernelAddresses
}

// SetRegions points the record at a MemRegion array already resident in
// the boot-info arena, in its final kernel-virtual form.
func (b *BootInfo) SetRegions(regions []MemRegion) {
	if len(regions) == 0 {
		b.regions = memRegionList{}
		return
	}
	b.regions = memRegionList{ptr: &regions[0], len: uint64(len(regions))}
}

// Regions reconstructs the region slice from the packed pointer/length
// pair, mirroring the reflect.SliceHeader reconstruction the boot-info
// builder's sliceAt uses for its own bump-allocated slices.
func (b *BootInfo) Regions() []MemRegion {
	if b.regions.ptr == nil {
		return nil
	}
	var hdr reflect.SliceHeader
	hdr.Data = uintptr(unsafe.Pointer(b.regions.ptr))
	hdr.Len = int(b.regions.len)
	hdr.Cap = int(b.regions.len)
	return *(*[]MemRegion)(unsafe.Pointer(&hdr))
}
