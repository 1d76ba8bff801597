package vmm

// entryCount is the number of entries in any level of the paging
// hierarchy: a table occupies exactly one 4 KiB page of 8-byte entries.
const entryCount = 512

// table is the common representation shared by every paging level: a
// page-aligned, page-sized array of 512 entries.
type table [entryCount]entry

// PML4 is the top-most table in the paging hierarchy, indexed by
// VirtAddr.PML4Index.
type PML4 table

// PDPT is a page-directory-pointer table, indexed by VirtAddr.PDPTIndex.
// A PDPT entry may additionally be a FlagHugePage leaf covering 1 GiB.
type PDPT table

// PD is a page directory, indexed by VirtAddr.PDIndex. A PD entry may
// additionally be a FlagHugePage leaf covering 2 MiB (unused by the early
// kernel, which maps at 4 KiB and 1 GiB granularity only).
type PD table

// PT is the bottom-most page table, indexed by VirtAddr.PTIndex. Every
// present PT entry is a leaf mapping a single 4 KiB page.
type PT table

// level identifies a position in the four-level walk. It exists purely to
// drive the shared walk logic in editor.go; the nominal PML4/PDPT/PD/PT
// types above are what callers and tests name.
type level uint8

const (
	levelPML4 level = iota
	levelPDPT
	levelPD
	levelPT
	numLevels
)

func (l level) isLeafLevel() bool {
	return l == levelPT
}

// indexFor returns the entry index that v selects at this level.
func (l level) indexFor(pml4, pdpt, pd, pt uint64) uint64 {
	switch l {
	case levelPML4:
		return pml4
	case levelPDPT:
		return pdpt
	case levelPD:
		return pd
	default:
		return pt
	}
}
