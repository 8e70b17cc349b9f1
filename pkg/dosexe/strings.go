package dosexe

import "github.com/cespare/xxhash/v2"

// stringPool interns string literals so identical constants share one
// NUL-terminated image slot. Entries keep insertion order to make the
// emitted image deterministic.
type stringPool struct {
	byHash map[uint64]int
	items  []string
	sizes  int
}

func newStringPool() *stringPool {
	return &stringPool{byHash: make(map[uint64]int)}
}

// intern returns the pool index for value, adding it on first use.
func (p *stringPool) intern(value string) int {
	h := xxhash.Sum64String(value)
	if idx, ok := p.byHash[h]; ok && p.items[idx] == value {
		return idx
	}
	idx := len(p.items)
	p.byHash[h] = idx
	p.items = append(p.items, value)
	p.sizes += len(value) + 1
	return idx
}

// offsetOf returns the byte offset of the indexed string within the
// pool image.
func (p *stringPool) offsetOf(idx int) int {
	off := 0
	for i := 0; i < idx; i++ {
		off += len(p.items[i]) + 1
	}
	return off
}

// image renders every interned string with its NUL terminator.
func (p *stringPool) image() []byte {
	out := make([]byte, 0, p.sizes)
	for _, s := range p.items {
		out = append(out, s...)
		out = append(out, 0)
	}
	return out
}

func (p *stringPool) size() int { return p.sizes }
