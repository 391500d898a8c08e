package seq

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ParallelSort drains src, sorts it under cmp using a worker pool that partitions the data into
// chunks, sorts each chunk concurrently, then merges the sorted chunks, and returns the result as
// an ordered sequence (spec.md §4.10 parallel_sort). workers <= 0 defaults to
// runtime.GOMAXPROCS(0).
func ParallelSort[T any](ctx context.Context, src Seq[T], cmp Comparator[T], workers int) (Seq[T], error) {
	src.Start()
	items := Collect(src)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}
	if len(items) <= 1 || workers == 1 {
		sort.Slice(items, func(i, j int) bool { return cmp(items[i], items[j]) })
		return AssumeOrdered(OfContainer(items)), nil
	}

	chunkSize := (len(items) + workers - 1) / workers
	var chunks [][]T
	for off := 0; off < len(items); off += chunkSize {
		end := off + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[off:end])
	}

	g, _ := errgroup.WithContext(ctx)
	for i := range chunks {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sort.Slice(chunks[i], func(a, b int) bool { return cmp(chunks[i][a], chunks[i][b]) })
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeChunks(chunks, cmp)
	return AssumeOrdered(OfContainer(merged)), nil
}

// mergeChunks performs a classic k-way merge of already-sorted chunks.
func mergeChunks[T any](chunks [][]T, cmp Comparator[T]) []T {
	idx := make([]int, len(chunks))
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]T, 0, total)
	for {
		best := -1
		for i, c := range chunks {
			if idx[i] >= len(c) {
				continue
			}
			if best == -1 || cmp(c[idx[i]], chunks[best][idx[best]]) {
				best = i
			}
		}
		if best == -1 {
			return out
		}
		out = append(out, chunks[best][idx[best]])
		idx[best]++
	}
}
