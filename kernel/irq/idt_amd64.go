package irq

import (
	"unsafe"

	"github.com/ktrieu/ugo-os/kernel/cpu"
)

// Vector identifies a slot in the interrupt descriptor table. Vectors below
// 32 are the architectural exception vectors; user-defined vectors (the PIC
// remap target among them) start at 32.
type Vector uint8

// The architectural exception vectors this kernel installs a fixed handler
// prefix for. Vectors not listed here (reserved or rarely-used ones) are
// left absent; the IDT leaves every other entry non-present at
// construction.
const (
	DivideByZero               Vector = 0
	Debug                      Vector = 1
	NMI                        Vector = 2
	Breakpoint                 Vector = 3
	Overflow                   Vector = 4
	BoundRangeExceeded         Vector = 5
	InvalidOpcode              Vector = 6
	DeviceNotAvailable         Vector = 7
	DoubleFault                Vector = 8
	InvalidTSS                 Vector = 10
	SegmentNotPresent          Vector = 11
	StackSegmentFault          Vector = 12
	GeneralProtectionFault     Vector = 13
	PageFault                  Vector = 14
	FloatingPointException     Vector = 16
	AlignmentCheck             Vector = 17
	MachineCheck               Vector = 18
	SIMDFloatingPointException Vector = 19

	// IRQBase is the first IDT vector the PIC cascade is remapped to.
	// IRQ n lands at IRQBase+n.
	IRQBase Vector = 32

	// TimerVector and KeyboardVector are the two IRQ lines InitPIC leaves
	// unmasked; a handler must be Install-ed for each before interrupts
	// are enabled, or the first tick dispatches to an absent handler.
	TimerVector    = IRQBase + 0
	KeyboardVector = IRQBase + 1
)

// Registers is the register snapshot a handler receives: the
// callee-saved/argument registers at the moment of interrupt, plus the
// IRETQ return frame.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	// ErrorCode holds the CPU-pushed error code for the vectors that push
	// one (DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
	// GeneralProtectionFault, PageFault, AlignmentCheck), and is zero
	// otherwise.
	ErrorCode uint64

	RIP, CS, RFlags, RSP, SS uint64
}

// Handler processes an interrupt or exception. It must be non-blocking:
// there is no scheduler to suspend to.
type Handler func(vector Vector, regs *Registers)

var handlers [256]Handler

// gateType is the IDT entry's descriptor type; this kernel uses interrupt
// gates exclusively (which clear RFLAGS.IF on entry), never trap gates.
const gateTypeInterrupt = 0xE

// idtEntry is a single 16-byte long-mode IDT descriptor: the handler
// offset split across three fields, the code segment selector, an IST
// index, gate type, DPL and present bit packed into one attribute byte.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	istAndZero uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

func newIDTEntry(handlerAddr uintptr, selector uint16, dpl uint8) idtEntry {
	return idtEntry{
		offsetLow:  uint16(handlerAddr),
		selector:   selector,
		istAndZero: 0,
		typeAttr:   gateTypeInterrupt | (dpl << 5) | 0x80, // present | DPL | gate type
		offsetMid:  uint16(handlerAddr >> 16),
		offsetHigh: uint32(handlerAddr >> 32),
	}
}

var idt [256]idtEntry

type idtDescriptor struct {
	limit uint16
	base  uintptr
}

// vectorEntryPoint returns the address of the generated assembly
// trampoline for vector: one of two fixed shapes (with or without an
// error-code slot) that saves the register set into a Registers value and
// calls Dispatch. The trampolines themselves are generated code outside
// this module's Go sources, the same way gate_amd64.go's
// interruptGateEntries() is declared without a body here and implemented
// in assembly.
func vectorEntryPoint(v Vector) uintptr

// InitIDT installs the fixed exception-vector prefix, leaves every other
// entry non-present, and loads the table. Handlers for individual vectors
// are registered separately via Install; InitIDT only has to exist so the
// table itself is loaded before PIC remapping unmasks any IRQ.
func InitIDT() {
	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	for v := 0; v < len(idt); v++ {
		idt[v] = idtEntry{}
	}
	for _, v := range []Vector{
		DivideByZero, Debug, NMI, Breakpoint, Overflow, BoundRangeExceeded,
		InvalidOpcode, DeviceNotAvailable, DoubleFault, InvalidTSS,
		SegmentNotPresent, StackSegmentFault, GeneralProtectionFault,
		PageFault, FloatingPointException, AlignmentCheck, MachineCheck,
		SIMDFloatingPointException,
	} {
		idt[v] = newIDTEntry(vectorEntryPoint(v), KernelCodeSelector, 0)
	}

	desc := idtDescriptor{
		limit: uint16(len(idt)*16 - 1),
		base:  uintptr(unsafe.Pointer(&idt[0])),
	}
	cpu.LoadIDT(uintptr(unsafe.Pointer(&desc)))
}

// Install registers handler for vector and marks its IDT entry present.
// User-defined vectors (IRQBase and above) are installed this way; the
// architectural exception prefix is installed in bulk by InitIDT but can
// still have its handler replaced by a later Install call.
func Install(v Vector, handler Handler) {
	wasEnabled := lock.Acquire()
	defer lock.Release(wasEnabled)

	handlers[v] = handler
	idt[v] = newIDTEntry(vectorEntryPoint(v), KernelCodeSelector, 0)
}

// Dispatch is called by the assembly trampoline for every interrupt. It
// looks up the registered handler for vector and invokes it; an
// unhandled vector is a fatal condition the caller (boot or kernel code)
// is expected to have ruled out by installing every vector it unmasks.
func Dispatch(v Vector, regs *Registers) {
	wasEnabled := lock.Acquire()
	h := handlers[v]
	lock.Release(wasEnabled)

	if h == nil {
		panic("irq: unhandled vector")
	}
	h(v, regs)
}
