package bootloader

import (
	"testing"
	"unsafe"

	"github.com/ktrieu/ugo-os/bootloader/bootalloc"
	"github.com/ktrieu/ugo-os/kernel/mem"
	"github.com/ktrieu/ugo-os/kernel/mem/memmap"
	"github.com/ktrieu/ugo-os/kernel/mem/pmm"
	"github.com/ktrieu/ugo-os/kernel/mem/vmm"
)

// testArena backs a handful of physical frames with real, page-aligned Go
// memory, the same fake policy builder_test.go and the vmm package's own
// tests use: frame N is backed by pages[N]. DirectMapHugeRange and
// MapRange never dereference a *leaf* target frame's contents (only
// intermediate page tables), so a small arena is enough to exercise a
// direct mapping spanning many gigabytes of simulated physical memory.
type testArena struct {
	pages [][4096]byte
}

func newTestArena(n int) *testArena {
	return &testArena{pages: make([][4096]byte, n)}
}

func (a *testArena) policy(f pmm.Frame) uintptr {
	if uint64(f) >= uint64(len(a.pages)) {
		panic("testArena: frame out of range")
	}
	return uintptr(unsafe.Pointer(&a.pages[f][0]))
}

func TestDirectMapPhysicalMemorySplitsAtGiBBoundaries(t *testing.T) {
	arena := newTestArena(512)
	m := &memmap.Map{}
	// A usable region reported by firmware starting at frame 0 (so no
	// prefix), spanning a whole 1 GiB body and a 16 KiB (4-frame) tail.
	const totalFrames = framesPerGiB + 4
	m.Insert(memmap.Region{Start: pmm.Frame(0), Pages: totalFrames, Type: memmap.Usable})

	alloc := bootalloc.New(m)
	editor := vmm.NewEditor(alloc.AllocFrame(), arena.policy)

	if err := directMapPhysicalMemory(m, editor, alloc); err != nil {
		t.Fatalf("directMapPhysicalMemory failed: %v", err)
	}

	// The first frame after the boot allocator's own PML4 allocation is
	// still covered by the huge-page body once mapped; check a frame well
	// inside the 1 GiB middle for a huge-page leaf.
	midFrame := pmm.Frame(framesPerGiB / 2)
	midPage := directPagesFor(midFrame.Range(1)).Start
	flags, frame, err := editor.GetEntry(midPage)
	if err != nil {
		t.Fatalf("GetEntry(mid) failed: %v", err)
	}
	if flags&vmm.FlagHugePage == 0 {
		t.Errorf("expected a huge-page leaf inside the 1 GiB body, flags = %v", flags)
	}
	if frame.Address().Raw()%uint64(mem.HugePageSize) != 0 {
		t.Errorf("huge-page leaf frame 0x%x is not 1 GiB aligned", frame.Address().Raw())
	}

	// The tail beyond the GiB boundary must be small-page mapped, not
	// covered by the huge entry.
	tailFrame := pmm.Frame(framesPerGiB + 1)
	tailPage := directPagesFor(tailFrame.Range(1)).Start
	tailFlags, _, err := editor.GetEntry(tailPage)
	if err != nil {
		t.Fatalf("GetEntry(tail) failed: %v", err)
	}
	if tailFlags&vmm.FlagHugePage != 0 {
		t.Errorf("expected a small-page leaf past the 1 GiB boundary, got a huge-page entry")
	}
}

func TestDirectMapPhysicalMemoryBelowOneGiBIsAllSmallPages(t *testing.T) {
	arena := newTestArena(512)
	m := &memmap.Map{}
	m.Insert(memmap.Region{Start: pmm.Frame(0), Pages: 300, Type: memmap.Usable})

	alloc := bootalloc.New(m)
	editor := vmm.NewEditor(alloc.AllocFrame(), arena.policy)

	if err := directMapPhysicalMemory(m, editor, alloc); err != nil {
		t.Fatalf("directMapPhysicalMemory failed: %v", err)
	}

	page := directPagesFor(pmm.Frame(1).Range(1)).Start
	flags, _, err := editor.GetEntry(page)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if flags&vmm.FlagHugePage != 0 {
		t.Errorf("a sub-GiB memory map must never produce a huge-page entry")
	}
}

func TestTrampolineFnAddrIsNonZero(t *testing.T) {
	if TrampolineFnAddr() == 0 {
		t.Fatalf("TrampolineFnAddr returned 0")
	}
}
