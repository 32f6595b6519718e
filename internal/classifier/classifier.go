// Package classifier turns raw page signals into a product status. It is a
// pure function so the priority rules can be tested exhaustively.
package classifier

import "github.com/aryanr/restock-watcher/internal/status"

// Classify maps the three visibility signals to a status. Out-of-stock wins
// over everything: some storefronts keep the add button in the DOM while the
// sold-out banner is showing.
func Classify(comingSoonVisible, addToCartVisible, outOfStockVisible bool) status.Status {
	switch {
	case outOfStockVisible:
		return status.StatusOutOfStock
	case addToCartVisible && !comingSoonVisible:
		return status.StatusAvailable
	case comingSoonVisible:
		return status.StatusComingSoon
	default:
		return status.StatusUnknown
	}
}
