package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"price_crew/models"
)

// workerRecord is the JSON object a worker prints on stdout.
type workerRecord struct {
	Status       models.OutcomeStatus `json:"status"`
	Title        *string              `json:"title"`
	Price        flexPrice            `json:"price"`
	Currency     string               `json:"currency"`
	Seller       *string              `json:"seller"`
	ImageURL     *string              `json:"imageUrl"`
	ProductURL   *string              `json:"productUrl"`
	SourceURL    *string              `json:"sourceUrl"`
	DataSource   string               `json:"dataSource"`
	ErrorMessage *string              `json:"errorMessage"`
	Error        *string              `json:"error"`
}

// flexPrice accepts a JSON number, a numeric string or null.
type flexPrice struct {
	value *float64
}

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		p.value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			p.value = nil
			return nil
		}
		v, ok := ParsePrice(s)
		if !ok {
			return fmt.Errorf("price %q is not numeric", s)
		}
		p.value = &v
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.value = &v
	return nil
}

var priceNumberRegex = regexp.MustCompile(`\d[\d.,]*`)

// ParsePrice extracts the first number from text like "EGP 1,299.00" or
// "1.299,00 €". A trailing comma group of one or two digits is the decimal
// part; other separators are thousands separators and are dropped.
func ParsePrice(text string) (float64, bool) {
	m := strings.TrimRight(priceNumberRegex.FindString(text), ".,")
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(normalizeNumber(m), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func normalizeNumber(m string) string {
	comma := strings.LastIndexByte(m, ',')
	dot := strings.LastIndexByte(m, '.')
	switch {
	case comma > dot && len(m)-comma-1 <= 2:
		return strings.Replace(strings.ReplaceAll(m, ".", ""), ",", ".", 1)
	case dot > comma && strings.Count(m, ".") > 1:
		return strings.ReplaceAll(strings.ReplaceAll(m, ".", ""), ",", "")
	}
	return strings.ReplaceAll(m, ",", "")
}

// decodeWorkerOutput parses captured stdout into an outcome. Workers that log
// to stdout by mistake still work as long as the record is the last line.
func decodeWorkerOutput(out []byte, productID string, region models.Region) (models.WorkerOutcome, error) {
	var rec workerRecord
	if err := json.Unmarshal(out, &rec); err != nil {
		last := lastLine(out)
		if len(last) == 0 || last[0] != '{' {
			return models.WorkerOutcome{}, err
		}
		if err := json.Unmarshal(last, &rec); err != nil {
			return models.WorkerOutcome{}, err
		}
	}

	o := models.WorkerOutcome{
		ProductID:  productID,
		Region:     region.Code,
		Status:     rec.Status,
		Title:      nonEmpty(rec.Title),
		Price:      rec.Price.value,
		Currency:   rec.Currency,
		Seller:     nonEmpty(rec.Seller),
		ImageURL:   nonEmpty(rec.ImageURL),
		SourceURL:  nonEmpty(rec.ProductURL),
		DataSource: rec.DataSource,
	}
	if o.Currency == "" {
		o.Currency = region.Currency
	}
	if o.DataSource == "" {
		o.DataSource = region.Code + "_worker"
	}
	if o.SourceURL == nil {
		o.SourceURL = nonEmpty(rec.SourceURL)
	}
	if o.SourceURL == nil && region.URLTemplate != "" {
		u := region.ProductURL(productID)
		o.SourceURL = &u
	}

	if o.Status == models.StatusFailed {
		o.Failure = models.FailureReported
		msg := nonEmpty(rec.ErrorMessage)
		if msg == nil {
			msg = nonEmpty(rec.Error)
		}
		if msg == nil {
			m := "worker reported failure"
			msg = &m
		}
		o.ErrorMessage = msg
	}

	if err := o.Validate(); err != nil {
		return models.WorkerOutcome{}, err
	}
	if o.Price != nil && *o.Price < 0 {
		return models.WorkerOutcome{}, errors.New("negative price")
	}
	return o, nil
}

func lastLine(out []byte) []byte {
	out = bytes.TrimSpace(out)
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		return bytes.TrimSpace(out[i+1:])
	}
	return out
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
