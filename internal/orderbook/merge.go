package orderbook

import "bookflow/models"

// Merge applies incoming level updates to the existing levels of one book
// side and returns the surviving levels in no particular order.
//
// Levels are keyed by normalized price. An incoming level replaces whatever
// is stored at its price; one with quantity <= 0 removes the price. Within a
// batch the last occurrence of a price wins. Neither input is modified.
func Merge(existing, incoming []models.PriceLevel) []models.PriceLevel {
	levels := make(map[string]models.PriceLevel, len(existing)+len(incoming))
	for _, l := range existing {
		levels[l.Key()] = l
	}
	for _, l := range incoming {
		if !l.Quantity.IsPositive() {
			delete(levels, l.Key())
			continue
		}
		levels[l.Key()] = l
	}

	out := make([]models.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, l)
	}
	return out
}
