package services

import (
	"math"

	"price_crew/models"
)

// DefaultAlertPercent is the absolute change, in percent, that raises an alert.
const DefaultAlertPercent = 5.0

// ComparePrices lists, in report order, every priced region whose price
// differs from the one stored in previous. Regions without a stored price or
// with a different stored currency are skipped. A non-positive alertPercent
// disables alerts.
func ComparePrices(previous *models.PriceRecord, report *models.AggregateReport, alertPercent float64) []models.PriceChange {
	if previous == nil {
		return nil
	}

	var changes []models.PriceChange
	for _, o := range report.Outcomes {
		if !o.Priced() {
			continue
		}
		stored, ok := previous.Regions[o.Region]
		if !ok || stored.Price == nil || *stored.Price <= 0 {
			continue
		}
		if stored.Currency != nil && *stored.Currency != o.Currency {
			continue
		}

		oldPrice, newPrice := *stored.Price, *o.Price
		if oldPrice == newPrice {
			continue
		}
		change := newPrice - oldPrice
		pct := change / oldPrice * 100
		changes = append(changes, models.PriceChange{
			Region:        o.Region,
			Currency:      o.Currency,
			OldPrice:      oldPrice,
			NewPrice:      newPrice,
			Change:        change,
			ChangePercent: pct,
			Alert:         alertPercent > 0 && math.Abs(pct) >= alertPercent,
		})
	}
	return changes
}
