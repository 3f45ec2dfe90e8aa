package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"price_crew/models"
	"resty.dev/v3"
)

// PageResult is the record the reference worker prints on stdout.
type PageResult struct {
	Status       models.OutcomeStatus `json:"status"`
	Title        *string              `json:"title"`
	Price        *float64             `json:"price"`
	Currency     string               `json:"currency"`
	Seller       *string              `json:"seller"`
	ImageURL     *string              `json:"imageUrl"`
	ProductURL   string               `json:"productUrl"`
	DataSource   string               `json:"dataSource"`
	ErrorMessage *string              `json:"errorMessage,omitempty"`
}

// PageFetcher fetches and parses one region's product page.
type PageFetcher struct {
	client *resty.Client
}

func NewPageFetcher(client *resty.Client) *PageFetcher {
	return &PageFetcher{client: client}
}

// Scrape never returns an error; problems are reported in the result.
func (f *PageFetcher) Scrape(ctx context.Context, region models.Region, productID string) PageResult {
	res := PageResult{
		Currency:   region.Currency,
		ProductURL: region.ProductURL(productID),
		DataSource: region.Code + "_dom",
	}

	resp, err := f.client.R().SetContext(ctx).Get(res.ProductURL)
	if err != nil {
		return res.failed(fmt.Sprintf("fetch page: %v", err))
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		res.Status = models.StatusUnavailable
		return res
	case code == http.StatusServiceUnavailable:
		return res.failed("blocked by marketplace (503)")
	case code >= 400:
		return res.failed(fmt.Sprintf("unexpected status %d", code))
	}

	page, err := ParseProductPage(bytes.NewReader(resp.Bytes()), region.Page)
	if err != nil {
		return res.failed(err.Error())
	}
	return res.fromPage(page)
}

func (r PageResult) fromPage(page *PageData) PageResult {
	if page.Title == "" {
		return r.failed("product title not found")
	}
	r.Title = &page.Title
	if page.Seller != "" {
		r.Seller = &page.Seller
	}
	if page.ImageURL != "" {
		r.ImageURL = &page.ImageURL
	}

	if page.Unavailable || page.Price == nil {
		r.Status = models.StatusUnavailable
		return r
	}
	r.Price = page.Price
	r.Status = models.StatusSuccess
	return r
}

func (r PageResult) failed(msg string) PageResult {
	r.Status = models.StatusFailed
	r.ErrorMessage = &msg
	return r
}
