// Package targets holds the merged target list (MTL): per-target
// science attributes, the mutable remaining-observation budget, and a
// sky index for radius queries around a tile center.
package targets

import (
	"context"
	"fmt"
	"slices"

	"github.com/ameisner/fiberassign/internal/logging"
)

// Observing-condition bits shared by targets and tiles.
const (
	ObsDark uint8 = 1 << iota
	ObsGray
	ObsBright
)

// TargetType classifies a target for the assignment passes.
type TargetType uint8

const (
	TypeScience TargetType = 1 << iota
	TypeStandard
	TypeSky
	TypeSafe
	TypeSuppl
)

func (t TargetType) String() string {
	switch t {
	case TypeScience:
		return "science"
	case TypeStandard:
		return "standard"
	case TypeSky:
		return "sky"
	case TypeSafe:
		return "safe"
	case TypeSuppl:
		return "suppl"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Target is one MTL entry. NObsRemaining is the only mutable field; it
// is owned by the assignment engine through MTL.Decrement.
type Target struct {
	ID            int64
	RA            float64
	Dec           float64
	ObsCond       uint8
	Priority      int32
	Subpriority   float64
	NObsRemaining int32
	Type          TargetType
}

// IsScience reports whether the target takes a science observation.
func (t *Target) IsScience() bool { return t.Type&TypeScience != 0 }

// IsStandard reports whether the target is a standard star.
func (t *Target) IsStandard() bool { return t.Type&TypeStandard != 0 }

// IsSky reports whether the target is a sky fiber position.
func (t *Target) IsSky() bool { return t.Type&TypeSky != 0 }

// IsSafe reports whether the target is a safe parking location.
func (t *Target) IsSafe() bool { return t.Type&TypeSafe != 0 }

// IsSuppl reports whether the target is supplementary fill.
func (t *Target) IsSuppl() bool { return t.Type&TypeSuppl != 0 }

// Done reports whether the target needs no further observations.
func (t *Target) Done() bool { return t.NObsRemaining <= 0 }

// MTL is the target catalog keyed by id, with a stable sorted id list
// for deterministic iteration.
type MTL struct {
	targets map[int64]*Target
	ids     []int64
}

// NewMTL builds the catalog. Duplicate target ids are fatal.
func NewMTL(ctx context.Context, log logging.Logger, list []Target) (*MTL, error) {
	if log == nil {
		log = logging.Noop()
	}
	m := &MTL{
		targets: make(map[int64]*Target, len(list)),
		ids:     make([]int64, 0, len(list)),
	}
	var nScience, nStandard, nSky, nSafe, nSuppl int
	for i := range list {
		tg := list[i]
		if _, dup := m.targets[tg.ID]; dup {
			return nil, fmt.Errorf("targets: duplicate target id %d", tg.ID)
		}
		m.targets[tg.ID] = &tg
		m.ids = append(m.ids, tg.ID)
		switch {
		case tg.IsScience():
			nScience++
		case tg.IsStandard():
			nStandard++
		case tg.IsSky():
			nSky++
		case tg.IsSafe():
			nSafe++
		case tg.IsSuppl():
			nSuppl++
		}
	}
	slices.Sort(m.ids)

	log.Info(ctx, "target list loaded",
		logging.Int("targets", len(m.ids)),
		logging.Int("science", nScience),
		logging.Int("standard", nStandard),
		logging.Int("sky", nSky),
		logging.Int("safe", nSafe),
		logging.Int("suppl", nSuppl),
	)
	return m, nil
}

// Get looks up a target by id.
func (m *MTL) Get(id int64) (*Target, bool) {
	tg, ok := m.targets[id]
	return tg, ok
}

// IDs returns the sorted target ids. Callers must not mutate the
// returned slice.
func (m *MTL) IDs() []int64 {
	return m.ids
}

// Len returns the number of targets.
func (m *MTL) Len() int {
	return len(m.ids)
}

// Decrement consumes one observation of a target after its tile is
// committed. Dropping below zero means the engine double-booked an
// observation; that is an accounting bug, not a data condition.
func (m *MTL) Decrement(id int64) error {
	tg, ok := m.targets[id]
	if !ok {
		return fmt.Errorf("targets: decrement of unknown target %d", id)
	}
	if tg.NObsRemaining <= 0 {
		return fmt.Errorf("targets: observation budget of target %d is already exhausted", id)
	}
	tg.NObsRemaining--
	return nil
}
