// Package locks serializes check-then-write sections keyed by string.
package locks

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
)

// Locker runs fn while holding every key in keys.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func() error) error
}

// Striped is an in-process Locker backed by a fixed set of mutexes.
// Keys are spread over the stripes by FNV-1a.
type Striped struct {
	stripes []sync.Mutex
}

func NewStriped(n int) *Striped {
	if n <= 0 {
		n = 256
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

// ResolveStripe maps key onto one of n stripes.
func ResolveStripe(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (s *Striped) WithLock(_ context.Context, keys []string, fn func() error) error {
	idx := s.stripesFor(keys)
	for _, i := range idx {
		s.stripes[i].Lock()
	}
	defer func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.stripes[idx[j]].Unlock()
		}
	}()
	return fn()
}

// stripesFor returns distinct stripe indexes in ascending order so that two
// callers holding overlapping key sets cannot deadlock.
func (s *Striped) stripesFor(keys []string) []int {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := ResolveStripe(k, len(s.stripes))
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
