package vmm

import (
	"testing"

	"github.com/ktrieu/ugo-os/kernel/mem/addr"
)

func TestPageRoundTrip(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if got := PageFromAddr(page.Address()); got != page {
			t.Errorf("PageFromAddr(page.Address()) round trip failed: got %d, want %d", got, page)
		}
	}
}

func TestPageFromFloorAddr(t *testing.T) {
	specs := []struct {
		input   uint64
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromFloorAddr(addr.NewVirtAddr(spec.input)); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}
}

func TestPageRangeContainsAndVisit(t *testing.T) {
	r := PageRange{Start: Page(5), End: Page(8)}
	if r.Contains(Page(4)) || r.Contains(Page(8)) {
		t.Error("Contains should be half-open")
	}

	var visited []Page
	r.Visit(func(p Page) { visited = append(visited, p) })
	want := []Page{5, 6, 7}
	if len(visited) != len(want) {
		t.Fatalf("visited %d pages; want %d", len(visited), len(want))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited[%d] = %d; want %d", i, visited[i], want[i])
		}
	}
}
