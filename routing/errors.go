package routing

import (
	"errors"
	"fmt"

	"github.com/tijuhasz/osm/graph"
)

var (
	// ErrNoClosestWay is returned when no candidate way yields a projection.
	ErrNoClosestWay = errors.New("no closest way found")
	// ErrDegenerateGeometry marks missing or invalid graph data supplied by the caller.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrChainUnresolved is returned when a walked chain does not reach an
	// intersection or dead end.
	ErrChainUnresolved = errors.New("chain unresolved")
)

// ChainError reports a chain that could not be resolved. It does not stop
// the processing of other chains.
type ChainError struct {
	From graph.NodeID
	Rel  graph.Edge
	Err  error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain from node %d via edge %d: %v", e.From, e.Rel.ID, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

func degenerate(err error) error {
	return fmt.Errorf("%w: %w", ErrDegenerateGeometry, err)
}
