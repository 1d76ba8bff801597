package pmm

import (
	"testing"

	"github.com/ktrieu/ugo-os/kernel/mem/addr"
)

func TestFrameRoundTrip(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if got := FrameFromAddr(frame.Address()); got != frame {
			t.Errorf("FrameFromAddr(frame.Address()) round trip failed: got %d, want %d", got, frame)
		}
	}

	if InvalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddrPanicsOnMisalignment(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for a non-page-aligned address")
		}
	}()
	FrameFromAddr(addr.NewPhysAddr(0x1001))
}

func TestFrameRangeSplit(t *testing.T) {
	// A range spanning a 1 GiB boundary should split into a prefix before
	// the boundary, an empty middle (less than one full unit available)
	// and a suffix after it.
	const gibFrames = 0x40000000 >> 12 // frames per 1 GiB
	r := FrameRange{Start: Frame(gibFrames - 1), End: Frame(gibFrames + 1)}

	prefix, middle, suffix := r.SplitAt(gibFrames)
	if got, want := prefix, (FrameRange{Frame(gibFrames - 1), Frame(gibFrames)}); got != want {
		t.Errorf("prefix = %+v; want %+v", got, want)
	}
	if !middle.Empty() {
		t.Errorf("expected empty middle, got %+v", middle)
	}
	if got, want := suffix, (FrameRange{Frame(gibFrames), Frame(gibFrames + 1)}); got != want {
		t.Errorf("suffix = %+v; want %+v", got, want)
	}
}

func TestFrameRangeSplitWholeMiddle(t *testing.T) {
	const gibFrames = 0x40000000 >> 12
	// [gibFrames, 3*gibFrames) is exactly two aligned 1 GiB blocks: the
	// whole range should land in the middle with empty prefix and suffix.
	r := FrameRange{Start: Frame(gibFrames), End: Frame(3 * gibFrames)}

	prefix, middle, suffix := r.SplitAt(gibFrames)
	if !prefix.Empty() {
		t.Errorf("expected empty prefix, got %+v", prefix)
	}
	if got, want := middle, r; got != want {
		t.Errorf("middle = %+v; want %+v", got, want)
	}
	if !suffix.Empty() {
		t.Errorf("expected empty suffix, got %+v", suffix)
	}
}

func TestFrameRangeContainsAndVisit(t *testing.T) {
	r := FrameRange{Start: Frame(10), End: Frame(13)}
	if r.Contains(Frame(9)) || r.Contains(Frame(13)) {
		t.Error("Contains should be half-open")
	}
	var visited []Frame
	r.Visit(func(f Frame) { visited = append(visited, f) })
	want := []Frame{10, 11, 12}
	if len(visited) != len(want) {
		t.Fatalf("visited %d frames; want %d", len(visited), len(want))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited[%d] = %d; want %d", i, visited[i], want[i])
		}
	}
}
