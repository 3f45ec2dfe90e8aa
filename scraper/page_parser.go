package scraper

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"price_crew/models"
)

// PageData is what the reference worker extracts from a product page.
type PageData struct {
	Title       string
	PriceText   string
	Price       *float64
	Seller      string
	ImageURL    string
	Unavailable bool
}

// ParseProductPage reads a product page and applies the region's selector
// lists. Each list is tried in order until a selector yields text.
func ParseProductPage(r io.Reader, sel models.PageSelectors) (*PageData, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	data := &PageData{
		Title:  firstText(doc, sel.Title),
		Seller: firstText(doc, sel.Seller),
	}

	data.PriceText = firstText(doc, sel.Price)
	if v, ok := ParsePrice(data.PriceText); ok && v > 0 {
		data.Price = &v
	}

	data.ImageURL = firstAttr(doc, sel.Image, sel.ImageAttrs)
	data.Unavailable = containsMarker(doc, sel.Unavailable)
	return data, nil
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, s := range selectors {
		text := strings.TrimSpace(doc.Find(s).First().Text())
		if text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

func firstAttr(doc *goquery.Document, selectors, attrs []string) string {
	for _, s := range selectors {
		node := doc.Find(s).First()
		for _, attr := range attrs {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func containsMarker(doc *goquery.Document, markers []string) bool {
	if len(markers) == 0 {
		return false
	}
	text := strings.ToLower(doc.Find("#availability, #outOfStock, #buybox").Text())
	if strings.TrimSpace(text) == "" {
		text = strings.ToLower(doc.Find("body").Text())
	}
	for _, m := range markers {
		if strings.Contains(text, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
