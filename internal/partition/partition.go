// Package partition splits ordered work into contiguous shards, one per worker.
package partition

// Partition splits items into exactly shards contiguous, non-overlapping
// sub-slices. Every shard but the last receives len(items)/shards items; the
// last shard receives everything that remains, so when len(items) < shards it
// is the only non-empty one. A non-positive shard count is treated as 1.
//
// The returned shards alias items.
func Partition[T any](items []T, shards int) [][]T {
	if shards <= 0 {
		shards = 1
	}
	unit := len(items) / shards
	out := make([][]T, shards)
	for i := 0; i < shards-1; i++ {
		out[i] = items[unit*i : unit*(i+1) : unit*(i+1)]
	}
	out[shards-1] = items[unit*(shards-1):]
	return out
}

// Sizes reports the length of each shard Partition would produce.
func Sizes(n, shards int) []int {
	if shards <= 0 {
		shards = 1
	}
	unit := n / shards
	sizes := make([]int, shards)
	for i := range sizes {
		sizes[i] = unit
	}
	sizes[shards-1] = n - unit*(shards-1)
	return sizes
}
