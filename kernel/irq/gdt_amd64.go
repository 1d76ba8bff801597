// Package irq implements the segmentation and interrupt plumbing of §4.8:
// a five-entry GDT, a 256-entry IDT with a fixed exception-vector prefix,
// and the legacy 8259 PIC cascade remapped off the BIOS's conflicting
// default vectors. No pack example builds a discrete GDT/IDT/PIC driver;
// this package follows the spec's activation sequences directly, using the
// same bit-packed-descriptor style the teacher applies to page table
// entries (kernel/mem/vmm/pte.go) and the declare-only asm primitives in
// kernel/cpu.
package irq

import (
	"unsafe"

	"github.com/ktrieu/ugo-os/kernel/cpu"
	"github.com/ktrieu/ugo-os/kernel/ksync"
)

// lock protects every process-wide singleton this package owns -- the GDT,
// the IDT, and the handlers table -- per §5's rule that such state is only
// ever touched inside an interrupt-safe critical section.
var lock ksync.Spinlock

// gdtEntry is a single 8-byte GDT descriptor in the standard x86 segment
// descriptor layout. Long-mode code/data descriptors leave base and limit
// unused (flat addressing is implied by the L bit), but the fields are
// still packed for completeness and because the CPU reads all of them.
type gdtEntry uint64

const (
	accessPresent    = 1 << 7
	accessNotSystem  = 1 << 4 // descriptor type: 1 = code/data, 0 = system
	accessExecutable = 1 << 3
	accessReadWrite  = 1 << 1
	flagLongMode     = 1 << 5 // granularity byte bit 5: 64-bit code segment
	dplShift         = 5
)

func ring(dpl uint8) uint64 { return uint64(dpl) << dplShift }

func newGDTEntry(access uint64, dpl uint8, longMode bool) gdtEntry {
	accessByte := access | uint64(accessPresent) | uint64(accessNotSystem) | ring(dpl)
	var flags uint64
	if longMode {
		flags = flagLongMode
	}
	// Base and limit are ignored by the CPU in 64-bit mode for code/data
	// segments, so every field but the access byte and the long-mode
	// flag is left zero.
	return gdtEntry(accessByte<<40 | flags<<48)
}

// GDT selector indices. Each selector is its index in the table times 8
// (the size of one descriptor), with the low 3 bits holding RPL/TI: zero
// for the kernel selectors, RPL 3 for the user selectors.
const (
	nullSelector       = 0
	KernelCodeSelector = 1 * 8
	KernelDataSelector = 2 * 8
	UserCodeSelector   = 3*8 | 3 // RPL 3
	UserDataSelector   = 4*8 | 3
)

// gdtDescriptor is the {limit, base} pointer LGDT consumes.
type gdtDescriptor struct {
	limit uint16
	base  uintptr
}

// GDT holds the five descriptors §4.8 specifies: null, kernel code (64-bit,
// ring 0), kernel data (ring 0, writable), user code (ring 3), user data
// (ring 3).
var gdt [5]gdtEntry

// InitGDT populates the five GDT entries and activates the table: load
// GDT, far-return through the kernel code selector, then reload the data
// segment registers with the kernel data selector. All three steps happen
// inside cpu.LoadGDT, since they must execute as one atomic sequence from
// Go's point of view -- there is no safe place to resume Go code between a
// GDT load and the matching far return.
func InitGDT() {
	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	gdt[0] = 0
	gdt[1] = newGDTEntry(accessExecutable|accessReadWrite, 0, true)
	gdt[2] = newGDTEntry(accessReadWrite, 0, false)
	gdt[3] = newGDTEntry(accessExecutable|accessReadWrite, 3, true)
	gdt[4] = newGDTEntry(accessReadWrite, 3, false)

	desc := gdtDescriptor{
		limit: uint16(len(gdt)*8 - 1),
		base:  uintptr(unsafe.Pointer(&gdt[0])),
	}
	cpu.LoadGDT(uintptr(unsafe.Pointer(&desc)), KernelCodeSelector, KernelDataSelector)
}
