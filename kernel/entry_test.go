package kernel

import (
	"testing"

	"github.com/ktrieu/ugo-os/bootinfo"
	"github.com/ktrieu/ugo-os/kernel/mem/memmap"
)

func TestMemMapFromBootInfoPreservesOrderAndType(t *testing.T) {
	info := &bootinfo.BootInfo{}
	info.SetRegions([]bootinfo.MemRegion{
		{Start: 0, Pages: 16, Type: bootinfo.Usable},
		{Start: 0x10000, Pages: 4, Type: bootinfo.Bootloader},
		{Start: 0x20000, Pages: 100, Type: bootinfo.Usable},
	})

	m := memMapFromBootInfo(info)
	if len(m.Regions) != 3 {
		t.Fatalf("len(Regions) = %d; want 3", len(m.Regions))
	}

	want := []struct {
		start uint64
		pages uint64
		typ   memmap.RegionType
	}{
		{0, 16, memmap.Usable},
		{0x10, 4, memmap.Bootloader},
		{0x20, 100, memmap.Usable},
	}
	for i, w := range want {
		if uint64(m.Regions[i].Start) != w.start {
			t.Errorf("Regions[%d].Start = %d; want %d", i, m.Regions[i].Start, w.start)
		}
		if m.Regions[i].Pages != w.pages {
			t.Errorf("Regions[%d].Pages = %d; want %d", i, m.Regions[i].Pages, w.pages)
		}
		if m.Regions[i].Type != w.typ {
			t.Errorf("Regions[%d].Type = %v; want %v", i, m.Regions[i].Type, w.typ)
		}
	}
}
