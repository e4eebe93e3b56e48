package batch_test

import (
	"errors"
	"fmt"
	"testing"

	"clipwise/internal/batch"
	"clipwise/internal/services"
)

func TestAllocationSplitsRemainderInOrder(t *testing.T) {
	tests := []struct {
		total   int
		sources []string
		want    []int
	}{
		{total: 4, sources: []string{"wikimedia", "archive"}, want: []int{2, 2}},
		{total: 5, sources: []string{"wikimedia", "archive"}, want: []int{3, 2}},
		{total: 7, sources: []string{"a", "b", "c"}, want: []int{3, 2, 2}},
		{total: 2, sources: []string{"a", "b", "c"}, want: []int{1, 1, 0}},
		{total: 0, sources: []string{"a", "b"}, want: []int{0, 0}},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d/%d", tc.total, len(tc.sources)), func(t *testing.T) {
			shares, err := batch.Allocation(tc.total, tc.sources)
			if err != nil {
				t.Fatalf("Allocation: %v", err)
			}
			if len(shares) != len(tc.want) {
				t.Fatalf("expected %d shares, got %d", len(tc.want), len(shares))
			}
			for i, share := range shares {
				if share.Source != tc.sources[i] || share.Count != tc.want[i] {
					t.Fatalf("share %d = %+v, want %s=%d", i, share, tc.sources[i], tc.want[i])
				}
			}
		})
	}
}

func TestAllocationProperties(t *testing.T) {
	pool := []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6"}
	for n := 1; n <= len(pool); n++ {
		for total := 0; total <= 50; total++ {
			shares, err := batch.Allocation(total, pool[:n])
			if err != nil {
				t.Fatalf("Allocation(%d, %d): %v", total, n, err)
			}
			sum, lo, hi := 0, total, 0
			for _, share := range shares {
				sum += share.Count
				lo = min(lo, share.Count)
				hi = max(hi, share.Count)
			}
			if sum != total {
				t.Fatalf("Allocation(%d, %d) sums to %d", total, n, sum)
			}
			if hi-lo > 1 {
				t.Fatalf("Allocation(%d, %d) unbalanced: %+v", total, n, shares)
			}
			for i := 1; i < len(shares); i++ {
				if shares[i].Count > shares[i-1].Count {
					t.Fatalf("Allocation(%d, %d) favours a later source: %+v", total, n, shares)
				}
			}
		}
	}
}

func TestAllocationRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		sources []string
	}{
		{name: "no sources", total: 3, sources: nil},
		{name: "negative", total: -1, sources: []string{"a"}},
		{name: "duplicate", total: 2, sources: []string{"a", "a"}},
		{name: "empty name", total: 2, sources: []string{"a", ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := batch.Distribute(tc.total, tc.sources)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestDistributeEmptyBatchWithoutSources(t *testing.T) {
	got, err := batch.Distribute(0, nil)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty allocation, got %v", got)
	}
}
