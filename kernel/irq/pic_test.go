package irq

import "testing"

type portWrite struct {
	port uint16
	val  uint8
}

func withFakeOutb(t *testing.T) *[]portWrite {
	var writes []portWrite
	orig := outbFn
	outbFn = func(port uint16, val uint8) { writes = append(writes, portWrite{port, val}) }
	t.Cleanup(func() { outbFn = orig })
	return &writes
}

func TestInitPICRemapSequence(t *testing.T) {
	writes := withFakeOutb(t)
	InitPIC()

	want := []portWrite{
		{masterCommand, icw1InitAndICW4}, {slaveCommand, icw1InitAndICW4},
		{masterData, uint8(IRQBase)}, {slaveData, uint8(IRQBase) + 8},
		{masterData, masterSlaveOnIRQ2}, {slaveData, cascadeIdentity},
		{masterData, icw4Mode8086}, {slaveData, icw4Mode8086},
		{masterData, maskAllExcept0And1}, {slaveData, 0xFF},
	}
	if len(*writes) != len(want) {
		t.Fatalf("InitPIC issued %d port writes; want %d", len(*writes), len(want))
	}
	for i, w := range want {
		if (*writes)[i] != w {
			t.Errorf("write %d = %+v; want %+v", i, (*writes)[i], w)
		}
	}
}

func TestInitPICUnmasksOnlyTimerAndKeyboard(t *testing.T) {
	if maskAllExcept0And1&0x01 != 0 || maskAllExcept0And1&0x02 != 0 {
		t.Fatalf("mask 0x%x must leave IRQ0 and IRQ1 unmasked", maskAllExcept0And1)
	}
	if maskAllExcept0And1&0x04 == 0 {
		t.Errorf("mask 0x%x must mask every other master IRQ", maskAllExcept0And1)
	}
}

func TestEOIMasterOnlyForMasterIRQ(t *testing.T) {
	writes := withFakeOutb(t)
	EOI(IRQBase) // IRQ0, master-sourced

	if len(*writes) != 1 {
		t.Fatalf("EOI for a master IRQ wrote %d ports; want 1", len(*writes))
	}
	if (*writes)[0] != (portWrite{masterCommand, eoiCommand}) {
		t.Errorf("EOI wrote %+v; want master command port only", (*writes)[0])
	}
}

func TestEOISignalsBothPICsForSlaveIRQ(t *testing.T) {
	writes := withFakeOutb(t)
	EOI(IRQBase + 8) // IRQ8, slave-sourced

	if len(*writes) != 2 {
		t.Fatalf("EOI for a slave IRQ wrote %d ports; want 2", len(*writes))
	}
	if (*writes)[0] != (portWrite{slaveCommand, eoiCommand}) {
		t.Errorf("first write = %+v; want slave command first", (*writes)[0])
	}
	if (*writes)[1] != (portWrite{masterCommand, eoiCommand}) {
		t.Errorf("second write = %+v; want master command second", (*writes)[1])
	}
}
