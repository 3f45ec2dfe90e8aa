package storage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"price_crew/models"
)

const pricesTable = "product_prices"

// Region codes end up in column names; the registry enforces the same shape.
var columnCodeRegex = regexp.MustCompile(`^[a-z][a-z0-9]{1,9}$`)

type regionColumns struct {
	Price, Currency, Title, Image string
}

func columnsFor(code string) regionColumns {
	return regionColumns{
		Price:    "price_" + code,
		Currency: "currency_" + code,
		Title:    "title_" + code,
		Image:    "image_" + code,
	}
}

// columnDDL lists "name type" pairs for every region column group.
func columnDDL(codes []string, floatType, textType string) []string {
	var defs []string
	for _, code := range codes {
		c := columnsFor(code)
		defs = append(defs,
			c.Price+" "+floatType,
			c.Currency+" "+textType,
			c.Title+" "+textType,
			c.Image+" "+textType,
		)
	}
	return defs
}

func checkCodes(codes []string) error {
	for _, code := range codes {
		if !columnCodeRegex.MatchString(code) {
			return fmt.Errorf("invalid region code for column name: %q", code)
		}
	}
	return nil
}

// buildPriceUpsert renders the upsert for the column groups present in rec.
// Price and currency are overwritten; titles and images keep the stored value
// when the new one is null. Regions not in rec are not touched.
func buildPriceUpsert(known map[string]bool, rec *models.PriceRecord, placeholder func(int) string, now time.Time) (string, []any, error) {
	codes := make([]string, 0, len(rec.Regions))
	for code := range rec.Regions {
		if !known[code] {
			return "", nil, fmt.Errorf("no price columns for region %q", code)
		}
		codes = append(codes, code)
	}
	sort.Strings(codes)

	cols := []string{"product_id", "title", "image_url", "updated_at"}
	args := []any{rec.ProductID, rec.Title, rec.ImageURL, now}
	updates := []string{
		"title = COALESCE(EXCLUDED.title, " + pricesTable + ".title)",
		"image_url = COALESCE(EXCLUDED.image_url, " + pricesTable + ".image_url)",
		"updated_at = EXCLUDED.updated_at",
	}

	for _, code := range codes {
		rp := rec.Regions[code]
		c := columnsFor(code)
		cols = append(cols, c.Price, c.Currency, c.Title, c.Image)
		args = append(args, rp.Price, rp.Currency, rp.Title, rp.ImageURL)
		updates = append(updates,
			fmt.Sprintf("%s = EXCLUDED.%s", c.Price, c.Price),
			fmt.Sprintf("%s = EXCLUDED.%s", c.Currency, c.Currency),
			fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", c.Title, c.Title, pricesTable, c.Title),
			fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", c.Image, c.Image, pricesTable, c.Image),
		)
	}

	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = placeholder(i + 1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (product_id) DO UPDATE SET %s",
		pricesTable,
		strings.Join(cols, ", "),
		strings.Join(marks, ", "),
		strings.Join(updates, ", "),
	)
	return query, args, nil
}

func buildPriceSelect(codes []string, placeholder string) string {
	cols := []string{"product_id", "title", "image_url", "updated_at"}
	for _, code := range codes {
		c := columnsFor(code)
		cols = append(cols, c.Price, c.Currency, c.Title, c.Image)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE product_id = %s",
		strings.Join(cols, ", "), pricesTable, placeholder)
}

// scanPriceRow scans a row produced by buildPriceSelect. Column groups that
// are entirely null are left out of Regions.
func scanPriceRow(scan func(dest ...any) error, codes []string) (*models.PriceRecord, error) {
	rec := &models.PriceRecord{Regions: make(map[string]models.RegionPrice)}
	groups := make([]models.RegionPrice, len(codes))

	dest := []any{&rec.ProductID, &rec.Title, &rec.ImageURL, &rec.UpdatedAt}
	for i := range groups {
		dest = append(dest, &groups[i].Price, &groups[i].Currency, &groups[i].Title, &groups[i].ImageURL)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}

	for i, code := range codes {
		g := groups[i]
		if g.Price == nil && g.Currency == nil && g.Title == nil && g.ImageURL == nil {
			continue
		}
		rec.Regions[code] = g
	}
	return rec, nil
}

func codeSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func historyLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
