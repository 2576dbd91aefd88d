package payment

import (
	"hash/fnv"
	"sort"
	"sync"
)

const lockStripes = 64

// stripedLock сериализует создание платежей по одному согласию внутри процесса.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func stripeOf(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

// lock берёт полосы всех ключей в порядке возрастания индекса и возвращает unlock.
func (l *stripedLock) lock(keys []string) func() {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, key := range keys {
		i := stripeOf(key)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
