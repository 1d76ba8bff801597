package irq

import "github.com/ktrieu/ugo-os/kernel/cpu"

// outbFn is a test seam over the privileged port-write primitive, the same
// style as ksync's interrupt-control seams.
var outbFn = cpu.Outb

// Legacy 8259 PIC I/O ports: command and data register for each chip.
const (
	masterCommand = 0x20
	masterData    = 0x21
	slaveCommand  = 0xA0
	slaveData     = 0xA1

	icw1InitAndICW4 = 0x11
	icw4Mode8086    = 0x01

	// masterSlaveOnIRQ2 tells the master that a slave PIC is cascaded on
	// IRQ2; cascadeIdentity tells the slave which IRQ line it is
	// cascaded on.
	masterSlaveOnIRQ2 = 0x04
	cascadeIdentity   = 0x02

	eoiCommand = 0x20
)

// maskAllExcept0And1 is the IRQ mask with every line disabled except timer
// (IRQ0) and keyboard (IRQ1): bit i = 1 masks IRQ i.
const maskAllExcept0And1 = ^uint8(0x03)

// InitPIC remaps the master PIC to IDT vectors [IRQBase, IRQBase+8) and the
// slave to [IRQBase+8, IRQBase+16), then unmasks only IRQ0 and IRQ1. The
// remap is mandatory even if no IRQ is ever unmasked: the PIC's power-on
// default vectors (8-15 for the master) collide with the CPU's own
// architectural exception vectors.
func InitPIC() {
	// ICW1: begin initialization sequence, ICW4 will be sent.
	outbFn(masterCommand, icw1InitAndICW4)
	outbFn(slaveCommand, icw1InitAndICW4)

	// ICW2: vector offsets.
	outbFn(masterData, uint8(IRQBase))
	outbFn(slaveData, uint8(IRQBase)+8)

	// ICW3: cascade wiring.
	outbFn(masterData, masterSlaveOnIRQ2)
	outbFn(slaveData, cascadeIdentity)

	// ICW4: 8086/88 mode.
	outbFn(masterData, icw4Mode8086)
	outbFn(slaveData, icw4Mode8086)

	outbFn(masterData, maskAllExcept0And1)
	outbFn(slaveData, 0xFF)
}

// EOI acknowledges vector v, which must be an IRQ vector (IRQBase or
// above). A slave-sourced IRQ (8 or above, relative to IRQBase) must
// signal both PICs; a master-sourced IRQ signals only the master.
func EOI(v Vector) {
	irq := uint8(v) - uint8(IRQBase)
	if irq >= 8 {
		outbFn(slaveCommand, eoiCommand)
	}
	outbFn(masterCommand, eoiCommand)
}
