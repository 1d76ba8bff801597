package vmm

import "github.com/ktrieu/ugo-os/kernel/mem/pmm"

// EntryFlag is a bit flag applied to a page table entry.
type EntryFlag uint64

const (
	// FlagPresent marks a page table entry as valid.
	FlagPresent EntryFlag = 1 << 0

	// FlagWritable allows writes through this entry.
	FlagWritable EntryFlag = 1 << 1

	// FlagUser allows ring-3 access through this entry. Unused by the
	// early kernel but defined for completeness of the bit layout.
	FlagUser EntryFlag = 1 << 2

	// FlagHugePage marks a PDPT/PD entry as a leaf covering a 1 GiB/2 MiB
	// range instead of pointing at a lower-level table.
	FlagHugePage EntryFlag = 1 << 7

	// FlagNoExecute forbids instruction fetches through this entry. It
	// occupies bit 63, the top bit of the entry.
	FlagNoExecute EntryFlag = 1 << 63

	// flagsIntermediate are the flags every non-leaf entry carries:
	// writable and executable, so that access control is enforced only
	// at the leaf.
	flagsIntermediate = FlagPresent | FlagWritable
)

const (
	frameAddrShift = 12
	frameAddrBits  = 40
	frameAddrMask  = (uint64(1)<<frameAddrBits - 1) << frameAddrShift
)

// entry is a single 64-bit page table entry: a 40-bit physical frame
// address at bit 12, packed together with the flag bits described above.
// Entries are always stored in little-endian natural width, which on
// amd64 is simply the machine's native uint64 representation.
type entry uint64

// HasFlags reports whether every flag in flags is set.
func (e entry) HasFlags(flags EntryFlag) bool {
	return uint64(e)&uint64(flags) == uint64(flags)
}

// HasAnyFlag reports whether at least one flag in flags is set.
func (e entry) HasAnyFlag(flags EntryFlag) bool {
	return uint64(e)&uint64(flags) != 0
}

// SetFlags ORs flags into the entry.
func (e *entry) SetFlags(flags EntryFlag) {
	*e = entry(uint64(*e) | uint64(flags))
}

// ClearFlags clears flags from the entry.
func (e *entry) ClearFlags(flags EntryFlag) {
	*e = entry(uint64(*e) &^ uint64(flags))
}

// Frame returns the physical frame this entry points to.
func (e entry) Frame() pmm.Frame {
	return pmm.Frame((uint64(e) & frameAddrMask) >> frameAddrShift)
}

// SetFrame updates the entry's frame address, leaving its flags untouched.
func (e *entry) SetFrame(f pmm.Frame) {
	*e = entry((uint64(*e) &^ frameAddrMask) | (uint64(f) << frameAddrShift))
}

// setIntermediate rewrites the entry in place to point at frame as a
// present, writable, executable intermediate table -- the only form an
// intermediate entry may legally take; per-mapping W/NX bits live at the
// leaf (or at a huge-page entry) only.
func (e *entry) setIntermediate(f pmm.Frame) {
	*e = 0
	e.SetFrame(f)
	e.SetFlags(flagsIntermediate)
}

// setLeaf rewrites the entry in place to point at frame as a present leaf
// carrying exactly the supplied mapping flags plus FlagPresent.
func (e *entry) setLeaf(f pmm.Frame, flags EntryFlag) {
	*e = 0
	e.SetFrame(f)
	e.SetFlags(FlagPresent | flags)
}
