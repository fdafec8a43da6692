package pool

import (
	"math/rand/v2"
	"sync"
)

// IdentityAllocator produces candidate client ids for connect attempts.
//
// The gateway rejects a second session reusing an active client id, and
// offers no way to list active ids; they can only be discovered by
// attempting and failing. Rejections are remembered for the lifetime of
// the process: an id rejected once is informative for every future
// attempt, not just the current one. The non-base candidates come out
// in randomized order so that multiple pool instances competing for the
// same id space do not converge on the same collision order.
type IdentityAllocator struct {
	base   int
	spread int

	mu       sync.Mutex
	rejected map[int]struct{}
}

// NewIdentityAllocator creates an allocator for the id range
// base .. base+spread.
func NewIdentityAllocator(base, spread int) *IdentityAllocator {
	return &IdentityAllocator{
		base:     base,
		spread:   spread,
		rejected: make(map[int]struct{}),
	}
}

// Candidates returns the ids to try, base first, the remainder
// shuffled. Ids previously rejected are excluded, unless exclusion
// would leave nothing to try, in which case the rejection memory is
// reset (the gateway may have freed an id since).
func (a *IdentityAllocator) Candidates() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.candidatesLocked()
	if len(out) == 0 {
		// Every id rejected; self-heal and try the full range again.
		a.rejected = make(map[int]struct{})
		out = a.candidatesLocked()
	}
	return out
}

func (a *IdentityAllocator) candidatesLocked() []int {
	rest := make([]int, 0, a.spread)
	for id := a.base + 1; id <= a.base+a.spread; id++ {
		if _, ok := a.rejected[id]; !ok {
			rest = append(rest, id)
		}
	}
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	out := make([]int, 0, len(rest)+1)
	if _, ok := a.rejected[a.base]; !ok {
		out = append(out, a.base)
	}
	return append(out, rest...)
}

// MarkRejected records that the gateway refused id as already in use.
func (a *IdentityAllocator) MarkRejected(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected[id] = struct{}{}
}

// RejectedCount returns how many ids are currently excluded.
func (a *IdentityAllocator) RejectedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rejected)
}
