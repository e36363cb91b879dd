// Package pricing resolves guest-count-tiered prices and classifies quote
// totals into budget brackets. All functions are pure; callers re-run
// ClassifyBudget on every selection change instead of caching brackets.
package pricing

import "devis-service/internal/models"

// Budget bracket thresholds, inclusive upper bounds, in cents.
const (
	bracketCeil1000 = 1000 * 100
	bracketCeil2000 = 2000 * 100
	bracketCeil5000 = 5000 * 100
)

// ResolvePrice maps a guest count and a catalog item to a single price in
// cents. The first band in original list order that contains the count wins;
// bands are never sorted here, so overlapping input resolves to whichever
// band the back-office listed first. When no band contains the count the
// price saturates to the band with the highest Min (any count outside the
// defined coverage falls into the top tier). An item with no bands prices
// at its base price.
func ResolvePrice(item *models.CatalogItem, guestCount int) int64 {
	if len(item.Bands) == 0 {
		return item.BasePriceCents
	}

	for _, band := range item.Bands {
		if band.Matches(guestCount) {
			return band.PriceCents
		}
	}

	top := item.Bands[0]
	for _, band := range item.Bands[1:] {
		if band.Min > top.Min {
			top = band
		}
	}
	return top.PriceCents
}

// ClassifyBudget maps a quote total in cents to its budget bracket. Total
// function: every non-negative total lands in exactly one bracket.
func ClassifyBudget(totalCents int64) models.BudgetBracket {
	switch {
	case totalCents <= bracketCeil1000:
		return models.BracketUnder1000
	case totalCents <= bracketCeil2000:
		return models.BracketTo2000
	case totalCents <= bracketCeil5000:
		return models.BracketTo5000
	default:
		return models.BracketOver5000
	}
}

// QuoteTotal sums the snapshot prices of a selection set.
func QuoteTotal(selections []models.QuoteSelection) int64 {
	var total int64
	for _, sel := range selections {
		total += sel.ResolvedPriceCents
	}
	return total
}
