package store

import (
	"context"
)

func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// BatchGet splits keys into chunks of at most MaxBatchKeys, calls fetch once
// per chunk and concatenates the results in chunk order. Empty and duplicate
// keys are dropped first.
func BatchGet[T any](ctx context.Context, keys []string, fetch func(ctx context.Context, chunk []string) ([]T, error)) ([]T, error) {
	keys = DedupeStrings(keys)
	out := make([]T, 0, len(keys))

	err := ChunkRange(len(keys), MaxBatchKeys, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := fetch(ctx, keys[start:end])
		if err != nil {
			return err
		}
		out = append(out, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
