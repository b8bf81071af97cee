package graph

import (
	"fmt"

	"github.com/duynguyendang/factgraph/pkg/model"
)

// Orientation is the outcome of projecting two bindings of one Fact.
type Orientation uint8

const (
	// NoEdge means the binding directions do not fit together.
	NoEdge Orientation = iota
	// Forward yields the edge (fact, in-binding object, out-binding object).
	Forward
	// Reversed yields the edge (fact, out-binding object, in-binding object).
	Reversed
)

func (o Orientation) String() string {
	switch o {
	case NoEdge:
		return "NoEdge"
	case Forward:
		return "Forward"
	case Reversed:
		return "Reversed"
	}
	return fmt.Sprintf("Orientation(%d)", uint8(o))
}

// Project decides which edge, if any, connects the objects of two bindings of
// the same Fact. in is the binding being traversed from, out the other one.
func Project(in, out model.Direction) (Orientation, error) {
	if !in.Valid() || !out.Valid() {
		return NoEdge, fmt.Errorf("%w: cannot project directions %s and %s", model.ErrDataIntegrity, in, out)
	}

	switch in {
	case model.DirectionNone:
		if out == model.DirectionNone {
			return Forward, nil
		}
	case model.DirectionBiDirectional:
		if out == model.DirectionBiDirectional {
			return Forward, nil
		}
	case model.DirectionFactIsDestination:
		if out == model.DirectionFactIsSource {
			return Forward, nil
		}
	case model.DirectionFactIsSource:
		// The out-binding object is the actual source.
		if out == model.DirectionFactIsDestination {
			return Reversed, nil
		}
	}
	return NoEdge, nil
}
