package workspace

import (
	"fmt"
	"os"
	"sync"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// Allocator hands out contiguous sequence ranges for auto-numbered documents.
//
// Reservations start above the highest sequence already on disk and above
// any range previously handed out for the same layout, so concurrent callers
// never receive overlapping numbers.
type Allocator struct {
	base int

	mu   sync.Mutex
	next map[string]int
}

// NewAllocator creates an allocator whose lowest sequence is base.
func NewAllocator(base int) *Allocator {
	if base < 0 {
		base = 0
	}
	return &Allocator{
		base: base,
		next: make(map[string]int),
	}
}

// Reserve returns the first of n contiguous sequence numbers for layout.
func (a *Allocator) Reserve(l *Layout, n int) (int, error) {
	if n < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidOption, "cannot reserve %d sequences", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	highest, err := l.HighestSequence()
	if err != nil {
		return 0, err
	}

	start := a.base
	if highest+1 > start {
		start = highest + 1
	}
	key := l.Base()
	if next, ok := a.next[key]; ok && next > start {
		start = next
	}
	a.next[key] = start + n
	return start, nil
}

// HighestSequence scans the image and thumbnail directories and returns the
// highest sequence number in use, or -1 when there is none.
func (l *Layout) HighestSequence() (int, error) {
	highest := -1

	scan := []struct {
		dir    string
		prefix string
	}{
		{l.ImageDir(), ImagePrefix},
		{l.ThumbnailDir(), ThumbnailPrefix},
	}
	for _, s := range scan {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to list %s", s.dir))
		}
		for _, e := range entries {
			if seq, ok := parseSequence(e.Name(), s.prefix); ok && seq > highest {
				highest = seq
			}
		}
	}
	return highest, nil
}
