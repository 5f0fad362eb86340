package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"
)

func TestChunkRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      [][2]int
	}{
		{name: "empty", total: 0, chunkSize: 100, want: nil},
		{name: "single_partial_chunk", total: 3, chunkSize: 100, want: [][2]int{{0, 3}}},
		{name: "exact_chunks", total: 200, chunkSize: 100, want: [][2]int{{0, 100}, {100, 200}}},
		{name: "trailing_chunk", total: 250, chunkSize: 100, want: [][2]int{{0, 100}, {100, 200}, {200, 250}}},
		{name: "non_positive_size_is_one_chunk", total: 7, chunkSize: 0, want: [][2]int{{0, 7}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got [][2]int
			err := ChunkRange(tc.total, tc.chunkSize, func(start, end int) error {
				got = append(got, [2]int{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("ChunkRange: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBatchGet_ChunksAtMaxBatchKeys(t *testing.T) {
	keys := make([]string, 0, 250)
	for i := range 250 {
		keys = append(keys, fmt.Sprintf("doc-%03d", i))
	}

	var sizes []int
	got, err := BatchGet(context.Background(), keys, func(_ context.Context, chunk []string) ([]string, error) {
		sizes = append(sizes, len(chunk))
		return chunk, nil
	})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if !slices.Equal(sizes, []int{100, 100, 50}) {
		t.Errorf("chunk sizes = %v", sizes)
	}
	if !slices.Equal(got, keys) {
		t.Errorf("results out of order")
	}
}

func TestBatchGet_EmptyKeysNeverCallsStore(t *testing.T) {
	calls := 0
	got, err := BatchGet(context.Background(), nil, func(_ context.Context, chunk []string) ([]int, error) {
		calls++
		return nil, nil
	})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty non-nil", got)
	}
	if calls != 0 {
		t.Errorf("store called %d times", calls)
	}
}

func TestBatchGet_DropsDuplicatesAndEmptyKeys(t *testing.T) {
	var seen []string
	_, err := BatchGet(context.Background(), []string{"a", "", "b", "a"}, func(_ context.Context, chunk []string) ([]string, error) {
		seen = append(seen, chunk...)
		return chunk, nil
	})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if !slices.Equal(seen, []string{"a", "b"}) {
		t.Errorf("requested keys = %v", seen)
	}
}

func TestBatchGet_PropagatesError(t *testing.T) {
	boom := errors.New("throttled")
	_, err := BatchGet(context.Background(), []string{"a"}, func(_ context.Context, chunk []string) ([]string, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}
