// Package heap implements the early kernel heap (§4.7): a fixed virtual
// window of pages, already allocated and mapped RW by the caller, served
// out through a first-fit freelist threaded through the free memory
// itself. A degenerate bump-only variant (bump.go) is kept alongside it
// for the earliest code paths that run before the freelist form is wired
// in, per the spec's staged-implementation note.
package heap

import (
	"unsafe"

	"github.com/ktrieu/ugo-os/kernel"
	"github.com/ktrieu/ugo-os/kernel/ksync"
	"github.com/ktrieu/ugo-os/kernel/mem"
)

// InitialPages is the page count of the heap window the kernel reserves at
// startup, placed immediately above the kernel stack top.
const InitialPages = 10

var (
	errLayoutTooLarge = &kernel.Error{Module: "heap", Message: "no free block large enough for the requested allocation"}
	errNotOwned       = &kernel.Error{Module: "heap", Message: "pointer was not returned by this heap"}
)

// Layout describes the size and alignment of a requested allocation,
// mirroring the allocator-layout vocabulary the spec uses throughout §4.7.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// allocHeader precedes every block the heap has handed out, so Free can
// recover the block's extent from nothing but the returned pointer.
type allocHeader struct {
	start uintptr
	end   uintptr
}

// freeHeader is a node in the doubly-linked list of free blocks, written
// directly into the free memory it describes. size includes the header
// itself. The list head lives outside the heap, in the Heap struct.
type freeHeader struct {
	prev, next *freeHeader
	size       uintptr
}

var (
	sizeofAllocHeader = unsafe.Sizeof(allocHeader{})
	sizeofFreeHeader  = unsafe.Sizeof(freeHeader{})
	alignofFreeHeader = unsafe.Alignof(freeHeader{})
)

// Heap is a first-fit freelist allocator over a single contiguous virtual
// window. Per §5's process-wide-singleton rule, every entry point takes an
// interrupt-safe lock, since a handler running on the same hardware thread
// could otherwise observe the freelist mid-splice.
type Heap struct {
	start uintptr
	end   uintptr
	head  *freeHeader
	mu    ksync.Spinlock
}

// New initializes a Heap over [start, start+size), which must already be
// mapped read-write. The entire window begins life as a single free block.
func New(start uintptr, size mem.Size) *Heap {
	h := &Heap{start: start, end: start + uintptr(size)}
	root := (*freeHeader)(unsafe.Pointer(start))
	*root = freeHeader{size: uintptr(size)}
	h.head = root
	return h
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// Alloc selects the first free block that can satisfy layout, carves the
// allocation out of its front, and returns a pointer to the requested
// bytes. If the block's remaining tail after the allocation is too small to
// host a FreeHeader, the whole block is consumed instead of split.
func (h *Heap) Alloc(layout Layout) (uintptr, *kernel.Error) {
	wasEnabled := h.mu.Acquire()
	defer h.mu.Release(wasEnabled)

	for block := h.head; block != nil; block = block.next {
		blockStart := uintptr(unsafe.Pointer(block))
		blockEnd := blockStart + block.size

		allocStart := alignUp(blockStart+sizeofAllocHeader, layout.Align)
		usedEnd := alignUp(allocStart+layout.Size, alignofFreeHeader)
		if usedEnd > blockEnd {
			continue
		}

		tailSize := blockEnd - usedEnd
		if tailSize < sizeofFreeHeader {
			usedEnd = blockEnd
			h.unlink(block)
		} else {
			h.replaceWithSplitTail(block, usedEnd, tailSize)
		}

		hdr := (*allocHeader)(unsafe.Pointer(allocStart - sizeofAllocHeader))
		*hdr = allocHeader{start: blockStart, end: usedEnd}
		return allocStart, nil
	}
	return 0, errLayoutTooLarge
}

// Free reinstalls the range recorded in ptr's AllocHeader as a single free
// block. A future refinement coalesces the reinstalled block with
// neighbouring free blocks; for now it is simply linked in at the head.
func (h *Heap) Free(ptr uintptr) *kernel.Error {
	wasEnabled := h.mu.Acquire()
	defer h.mu.Release(wasEnabled)

	if ptr < h.start+sizeofAllocHeader || ptr > h.end {
		return errNotOwned
	}
	hdr := (*allocHeader)(unsafe.Pointer(ptr - sizeofAllocHeader))

	freed := (*freeHeader)(unsafe.Pointer(hdr.start))
	*freed = freeHeader{size: hdr.end - hdr.start, next: h.head}
	if h.head != nil {
		h.head.prev = freed
	}
	h.head = freed
	return nil
}

func (h *Heap) unlink(block *freeHeader) {
	if block.prev != nil {
		block.prev.next = block.next
	} else {
		h.head = block.next
	}
	if block.next != nil {
		block.next.prev = block.prev
	}
}

// replaceWithSplitTail writes a new FreeHeader at tailStart carrying
// block's original prev/next, then patches those neighbours to point at
// the new node instead of block.
func (h *Heap) replaceWithSplitTail(block *freeHeader, tailStart, tailSize uintptr) {
	tail := (*freeHeader)(unsafe.Pointer(tailStart))
	*tail = freeHeader{prev: block.prev, next: block.next, size: tailSize}

	if block.prev != nil {
		block.prev.next = tail
	} else {
		h.head = tail
	}
	if block.next != nil {
		block.next.prev = tail
	}
}
