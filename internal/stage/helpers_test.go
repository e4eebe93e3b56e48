package stage

import (
	"errors"
	"testing"

	"clipwise/internal/services"
)

func TestLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -3, want: 1},
		{in: 0, want: 1},
		{in: 1, want: 1},
		{in: 8, want: 8},
	}
	for _, tc := range tests {
		if got := Limit(tc.in); got != tc.want {
			t.Fatalf("Limit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRequireRun(t *testing.T) {
	if err := RequireRun("ingest", "run-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := RequireRun("ingest", "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	if h := Check("index", nil); !h.Ready || h.Detail != "" {
		t.Fatalf("expected healthy, got %+v", h)
	}
	h := Check("index", errors.New("database is locked"))
	if h.Ready || h.Name != "index" || h.Detail != "database is locked" {
		t.Fatalf("unexpected health %+v", h)
	}
}
