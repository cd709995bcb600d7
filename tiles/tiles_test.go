package tiles

import (
	"context"
	"testing"

	"github.com/ameisner/fiberassign/internal/logging"
)

func TestNewBuildsOrderIndex(t *testing.T) {
	tl, err := New(context.Background(), logging.Noop(),
		[]int32{30, 10, 20},
		[]float64{1, 2, 3},
		[]float64{4, 5, 6},
		[]uint8{1, 2, 4},
		[]float64{0, 0.5, 1},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if tl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tl.Len())
	}
	if tl.Order[30] != 0 || tl.Order[10] != 1 || tl.Order[20] != 2 {
		t.Fatalf("Order = %v, want input sequence positions", tl.Order)
	}
}

func TestNewRejectsDuplicateID(t *testing.T) {
	_, err := New(context.Background(), logging.Noop(),
		[]int32{1, 1},
		[]float64{0, 0},
		[]float64{0, 0},
		[]uint8{1, 1},
		[]float64{0, 0},
	)
	if err == nil {
		t.Fatal("expected error for duplicate tile id")
	}
}

func TestNewRejectsMismatchedColumns(t *testing.T) {
	_, err := New(context.Background(), logging.Noop(),
		[]int32{1, 2},
		[]float64{0},
		[]float64{0, 0},
		[]uint8{1, 1},
		[]float64{0, 0},
	)
	if err == nil {
		t.Fatal("expected error for mismatched column lengths")
	}
}
