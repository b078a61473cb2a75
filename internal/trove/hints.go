package trove

import "fmt"

// NeighborHints carries up to two neighbor ICR values supplied by the
// external sorted-index collaborator. Nil fields mean "no hint on that side".
//
// Hints are optional for backward compatibility: an operation with zero hints
// skips ordering validation entirely, which weakens the sorted-index
// guarantee. Callers that maintain a sorted index should always supply both
// neighbors.
type NeighborHints struct {
	PrevICR *uint64
	NextICR *uint64
}

// Empty reports whether no hints were supplied.
func (h *NeighborHints) Empty() bool {
	return h == nil || (h.PrevICR == nil && h.NextICR == nil)
}

// validateHints checks prevICR <= newICR <= nextICR (ascending by risk:
// lowest ICR first).
func validateHints(newICR uint64, hints *NeighborHints) error {
	if hints.Empty() {
		return nil
	}
	if hints.PrevICR != nil && *hints.PrevICR > newICR {
		return fmt.Errorf("%w: prev hint %d > new ICR %d", ErrInvalidSortOrder, *hints.PrevICR, newICR)
	}
	if hints.NextICR != nil && newICR > *hints.NextICR {
		return fmt.Errorf("%w: new ICR %d > next hint %d", ErrInvalidSortOrder, newICR, *hints.NextICR)
	}
	return nil
}
