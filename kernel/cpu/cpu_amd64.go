// Package cpu declares the privileged amd64 primitives the memory and
// interrupt subsystems are built on. Every function here has no Go body: it
// is implemented in architecture assembly linked in alongside this package,
// the same declare-only pattern the teacher uses throughout this file.
package cpu

// EnableInterrupts enables interrupt handling (STI).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (CLI).
func DisableInterrupts()

// InterruptsEnabled reports whether the interrupt flag (RFLAGS.IF) is
// currently set, so ksync.Spinlock can save and later restore it.
func InterruptsEnabled() bool

// Halt stops instruction execution (HLT) until the next interrupt.
func Halt()

// FlushTLBEntry flushes a single TLB entry for a particular virtual
// address (INVLPG). No cross-CPU shootdown is implemented; this system
// has exactly one hardware thread.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the entire TLB (MOV to CR3).
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page
// table root (CR3), used by vmm.NewKernelTables to re-enter the
// bootloader-constructed page map.
func ActivePDT() uintptr

// Outb writes a single byte to an I/O port (OUT), used by the PIC and
// other legacy port-mapped devices.
func Outb(port uint16, val uint8)

// Inb reads a single byte from an I/O port (IN).
func Inb(port uint16) uint8

// LoadGDT loads a new global descriptor table from the given descriptor
// pointer (LGDT) and performs the far-return-through-kernel-code-selector,
// data-segment-reload sequence §4.8 specifies for activating it.
func LoadGDT(gdtPtr uintptr, codeSelector, dataSelector uint16)

// LoadIDT loads a new interrupt descriptor table from the given descriptor
// pointer (LIDT).
func LoadIDT(idtPtr uintptr)

// Trampoline performs the three-instruction bootloader-to-kernel handoff:
// mov cr3, rax; mov rsp, rbx; jmp rcx. cr3 is the physical address of the
// bootloader-constructed PML4, stackTop the kernel's stack pointer, entry
// the kernel's ELF entry point. The page(s) backing this function's own
// code must already be identity-mapped (vmm.Editor.IdentityMapFn) before it
// is called, since the CR3 write takes effect mid-instruction-stream.
func Trampoline(cr3, stackTop, entry uintptr)
