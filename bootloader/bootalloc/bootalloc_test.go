package bootalloc

import (
	"testing"

	"github.com/ktrieu/ugo-os/kernel/mem/memmap"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
)

func testMap() *memmap.Map {
	var m memmap.Map
	m.Insert(memmap.Region{Start: pmm.Frame(0), Pages: 64, Type: memmap.Allocated})
	m.Insert(memmap.Region{Start: pmm.Frame(64), Pages: 1024, Type: memmap.Usable})
	return &m
}

func TestNewSelectsFirstLargeEnoughUsableRegion(t *testing.T) {
	a := New(testMap())
	if a.start != pmm.Frame(64) {
		t.Errorf("reservation start = %v; want frame 64", a.start)
	}
}

func TestAllocFrameAdvances(t *testing.T) {
	a := New(testMap())
	f0 := a.AllocFrame()
	f1 := a.AllocFrame()
	if f1 != f0.Add(1) {
		t.Errorf("second allocation = %v; want %v", f1, f0.Add(1))
	}
}

func TestAllocFrameRange(t *testing.T) {
	a := New(testMap())
	r := a.AllocFrameRange(10)
	if r.Len() != 10 {
		t.Fatalf("AllocFrameRange(10) returned %d frames", r.Len())
	}
	if next := a.AllocFrame(); next != r.End() {
		t.Errorf("next frame after range = %v; want %v", next, r.End())
	}
}

func TestAllocFramePanicsWhenExhausted(t *testing.T) {
	a := New(testMap())
	a.AllocFrameRange(1024)

	defer func() {
		if recover() == nil {
			t.Error("expected AllocFrame to panic once the reservation is exhausted")
		}
	}()
	a.AllocFrame()
}

func TestUsedAndReservedRange(t *testing.T) {
	a := New(testMap())
	a.AllocFrameRange(5)

	reserved := a.ReservedRange()
	used := a.UsedRange()
	if reserved.Len() != 1024 {
		t.Errorf("ReservedRange().Len() = %d; want 1024", reserved.Len())
	}
	if used.Len() != 5 {
		t.Errorf("UsedRange().Len() = %d; want 5", used.Len())
	}
	if used.Start != reserved.Start {
		t.Errorf("UsedRange().Start = %v; want %v", used.Start, reserved.Start)
	}
}
