// Package tiles holds the ordered list of telescope pointings for an
// assignment run.
package tiles

import (
	"context"
	"fmt"

	"github.com/ameisner/fiberassign/internal/logging"
)

// Tiles is the ordered tile list. The slices are parallel; the
// sequence is the observation order. Immutable after New.
type Tiles struct {
	ID      []int32
	RA      []float64
	Dec     []float64
	ObsCond []uint8

	// Theta is the per-tile field rotation angle in degrees.
	Theta []float64

	// Order maps a tile id back to its position in the sequence.
	Order map[int32]int
}

// New builds the tile list and its reverse index. Duplicate tile ids
// and mismatched column lengths are fatal.
func New(ctx context.Context, log logging.Logger, ids []int32, ra, dec []float64, obscond []uint8, theta []float64) (*Tiles, error) {
	if log == nil {
		log = logging.Noop()
	}
	n := len(ids)
	if len(ra) != n || len(dec) != n || len(obscond) != n || len(theta) != n {
		return nil, fmt.Errorf("tiles: mismatched column lengths (ids=%d ra=%d dec=%d obscond=%d theta=%d)",
			n, len(ra), len(dec), len(obscond), len(theta))
	}

	t := &Tiles{
		ID:      append([]int32(nil), ids...),
		RA:      append([]float64(nil), ra...),
		Dec:     append([]float64(nil), dec...),
		ObsCond: append([]uint8(nil), obscond...),
		Theta:   append([]float64(nil), theta...),
		Order:   make(map[int32]int, n),
	}
	for i, id := range t.ID {
		if _, dup := t.Order[id]; dup {
			return nil, fmt.Errorf("tiles: duplicate tile id %d", id)
		}
		t.Order[id] = i
	}

	log.Info(ctx, "tile list loaded", logging.Int("tiles", n))
	return t, nil
}

// Len returns the number of tiles in the sequence.
func (t *Tiles) Len() int {
	return len(t.ID)
}
