package heap

import "github.com/ktrieu/ugo-os/kernel"

// Bump is the degenerate bump-only allocator the spec allows as a staged
// fallback for the earliest code paths, before a Heap's freelist form is
// wired in as the global allocator. Free is a no-op: nothing reclaimed
// through a Bump is ever reused.
type Bump struct {
	start uintptr
	end   uintptr
	top   uintptr
}

var errBumpOutOfMemory = &kernel.Error{Module: "heap", Message: "bump heap exhausted"}

// NewBump initializes a Bump over [start, start+size).
func NewBump(start uintptr, size uintptr) *Bump {
	return &Bump{start: start, end: start + size, top: start}
}

// Alloc aligns the current top pointer up to layout.Align, advances top
// past layout.Size, and returns the aligned start. It never reclaims space
// reclaimed by a prior Free, since Free is a no-op here.
func (b *Bump) Alloc(layout Layout) (uintptr, *kernel.Error) {
	start := alignUp(b.top, layout.Align)
	end := start + layout.Size
	if end > b.end {
		return 0, errBumpOutOfMemory
	}
	b.top = end
	return start, nil
}

// Free is a no-op: the bump allocator never reclaims memory. It exists only
// so Bump satisfies the same alloc/free shape the freelist Heap does.
func (b *Bump) Free(ptr uintptr) *kernel.Error {
	return nil
}
