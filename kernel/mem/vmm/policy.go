package vmm

import (
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
)

// MappingPolicy converts a physical frame into the virtual address at which
// its contents can currently be read or written. It is the one thing that
// differs between a bootloader-phase editor and a kernel-phase editor; the
// walk logic in editor.go is identical for both.
//
// This is intentionally a plain function value, not an interface: the
// conversion sits on the critical path of every page-table walk, and
// compile-time parameterization lets the compiler inline it instead of
// paying for a dynamic dispatch on every entry visited.
type MappingPolicy func(pmm.Frame) uintptr

// IdentityPolicy is the mapping policy in effect during the bootloader
// phase, while the firmware's identity mapping of low physical memory is
// still active: a frame's contents are reachable at its own physical
// address.
func IdentityPolicy(f pmm.Frame) uintptr {
	return uintptr(f.Address().Raw())
}

// DirectMapPolicy is the mapping policy in effect once the kernel has taken
// over: a frame's contents are reachable through the direct mapping
// established at PhysMemStart.
func DirectMapPolicy(f pmm.Frame) uintptr {
	return uintptr(f.Address().Raw() + mem.PhysMemStart)
}
