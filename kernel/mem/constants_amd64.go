//go:build amd64

package mem

// Fixed virtual memory layout constants (see the virtual memory layout
// table): user space occupies the low canonical half, the direct mapping
// of all physical memory starts immediately above the canonical hole, the
// boot-info window follows it, and the kernel image occupies the
// remainder of the address space.
const (
	// KMemStart is the first address of the canonical high half and the
	// base of the direct-mapped physical memory window.
	KMemStart = uint64(0xFFFF_8000_0000_0000)

	// PhysMemStart is the virtual base of the direct mapping: virt =
	// phys + PhysMemStart for every usable physical address.
	PhysMemStart = KMemStart

	// PhysMemMax is the size of the direct-mapped window: enough to
	// cover 64 TiB of physical memory.
	PhysMemMax = Size(64) * Tb

	// BootInfoStart is the virtual base of the fixed-size window holding
	// the boot-info record and the structures it points to.
	BootInfoStart = PhysMemStart + uint64(PhysMemMax)

	// BootInfoSize is the size of the boot-info window.
	BootInfoSize = Size(1) * Gb

	// KernelStart is the virtual base at which the kernel ELF image is
	// linked and loaded.
	KernelStart = BootInfoStart + uint64(BootInfoSize)
)

// Common memory block sizes beyond mem.go's Kb/Mb/Gb, used by the layout
// constants above.
const (
	Tb = 1024 * Gb
)
