package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allDirections = []model.Direction{
	model.DirectionNone,
	model.DirectionBiDirectional,
	model.DirectionFactIsSource,
	model.DirectionFactIsDestination,
}

func expectedOrientation(in, out model.Direction) Orientation {
	switch {
	case in == model.DirectionNone && out == model.DirectionNone:
		return Forward
	case in == model.DirectionBiDirectional && out == model.DirectionBiDirectional:
		return Forward
	case in == model.DirectionFactIsDestination && out == model.DirectionFactIsSource:
		return Forward
	case in == model.DirectionFactIsSource && out == model.DirectionFactIsDestination:
		return Reversed
	}
	return NoEdge
}

func TestProject_Matrix(t *testing.T) {
	for _, in := range allDirections {
		for _, out := range allDirections {
			got, err := Project(in, out)
			require.NoError(t, err)
			assert.Equal(t, expectedOrientation(in, out), got, "Project(%s, %s)", in, out)
		}
	}
}

func TestProject_UnknownDirection(t *testing.T) {
	_, err := Project(model.Direction(9), model.DirectionNone)
	assert.True(t, errors.Is(err, model.ErrDataIntegrity))

	_, err = Project(model.DirectionNone, model.Direction(9))
	assert.True(t, errors.Is(err, model.ErrDataIntegrity))
}

func TestCreateEdges_DirectionMatrix(t *testing.T) {
	ctx := context.Background()

	for _, in := range allDirections {
		for _, out := range allDirections {
			t.Run(fmt.Sprintf("%s_%s", in, out), func(t *testing.T) {
				s := newFakeStore()
				a := s.addObject("ip")
				b := s.addObject("domain")
				fact := s.addFact("resolvesTo", bind(a, in), bind(b, out))

				f, err := NewElementFactory(s, allowAll, FactoryConfig{})
				require.NoError(t, err)

				edges, err := f.CreateEdges(ctx, inBinding(a, fact, in))
				require.NoError(t, err)

				switch expectedOrientation(in, out) {
				case NoEdge:
					assert.Empty(t, edges)
				case Forward:
					require.Len(t, edges, 1)
					assert.Equal(t, a.ID, edges[0].InVertexID)
					assert.Equal(t, b.ID, edges[0].OutVertexID)
				case Reversed:
					require.Len(t, edges, 1)
					assert.Equal(t, b.ID, edges[0].InVertexID)
					assert.Equal(t, a.ID, edges[0].OutVertexID)
				}
				for _, e := range edges {
					assert.Equal(t, fact.ID, e.FactID)
					assert.Equal(t, "resolvesTo", e.Label)
				}
			})
		}
	}
}
