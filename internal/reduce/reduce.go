// Package reduce collapses an ordered list into a single item through repeated
// grouped combination. Grouping is strictly left-to-right and contiguous;
// content never reorders or rebalances a group.
package reduce

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Combine merges one contiguous group into a single item.
type Combine[T any] func(ctx context.Context, group []T) (T, error)

// Reduce runs rounds of grouped combination until one item remains.
//
// If len(items) <= groupSize a single combine over all items is the whole
// reduction. Otherwise each round partitions the list into contiguous groups
// of at most groupSize (last group may be smaller), combines the groups
// concurrently, and reassembles the outputs in group order; for groupSize >= 2
// the item count shrinks by a factor of groupSize per round, so the loop ends
// in ceil(log_groupSize(N)) rounds. The loop is explicit rather than
// recursive, so pathological inputs cannot exhaust the call stack.
//
// groupSize == 1 cannot shrink through pure grouping, so it degenerates to a
// pairwise-sequential collapse: each round the leading group takes two items
// and the rest pass through singly, ending after N-1 rounds.
func Reduce[T any](ctx context.Context, items []T, groupSize int, combine Combine[T]) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, fmt.Errorf("reduce requires at least one item")
	}
	if groupSize < 1 {
		return zero, fmt.Errorf("group size must be >= 1, got %d", groupSize)
	}

	round := 0
	for len(items) > groupSize {
		round++
		groups := partition(items, groupSize)

		next := make([]T, len(groups))
		g, gctx := errgroup.WithContext(ctx)
		for i, group := range groups {
			g.Go(func() error {
				out, err := combine(gctx, group)
				if err != nil {
					return fmt.Errorf("round %d group %d: %w", round, i, err)
				}
				next[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return zero, err
		}
		items = next
	}

	return combine(ctx, items)
}

// partition slices items into contiguous groups of at most size. When size is
// 1 the leading group takes two items so every round still shrinks the list.
func partition[T any](items []T, size int) [][]T {
	if size == 1 {
		groups := make([][]T, 0, len(items)-1)
		groups = append(groups, items[:2])
		for i := 2; i < len(items); i++ {
			groups = append(groups, items[i:i+1])
		}
		return groups
	}

	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}
