package services

import (
	"slices"

	"price_crew/models"
)

// Aggregate folds the outcomes of one batch into a report. It does no I/O and
// copies outcomes, so the caller's slice can be reused.
func Aggregate(productID string, outcomes []models.WorkerOutcome) *models.AggregateReport {
	report := &models.AggregateReport{
		ProductID: productID,
		Outcomes:  slices.Clone(outcomes),
	}

	var minPrice, maxPrice float64
	priced := 0

	for _, o := range report.Outcomes {
		switch o.Status {
		case models.StatusSuccess:
			report.SucceededCount++
		case models.StatusUnavailable:
			report.UnavailableCount++
		default:
			report.FailedCount++
		}

		// First writer wins for the descriptive fields.
		if report.Title == nil && o.Title != nil && *o.Title != "" {
			report.Title = copyString(o.Title)
		}
		if report.ImageURL == nil && o.ImageURL != nil && *o.ImageURL != "" {
			report.ImageURL = copyString(o.ImageURL)
		}

		if !o.Priced() {
			continue
		}
		price := *o.Price
		if priced == 0 || price < minPrice {
			minPrice = price
			report.BestRegion = o.Region
			report.BestCurrency = o.Currency
		}
		if priced == 0 || price > maxPrice {
			maxPrice = price
		}
		priced++
	}

	if priced > 0 {
		report.BestPrice = &minPrice
	}
	if priced >= 2 {
		spread := (maxPrice - minPrice) / maxPrice * 100
		report.PriceSpreadPercent = &spread
	}

	report.Status = batchStatus(report.SucceededCount, len(report.Outcomes))
	return report
}

func batchStatus(succeeded, total int) models.BatchStatus {
	switch {
	case total > 0 && succeeded == total:
		return models.BatchSucceeded
	case succeeded == 0:
		return models.BatchFailed
	default:
		return models.BatchPartial
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
