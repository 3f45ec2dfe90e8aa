package identity

import (
	"regexp"
	"strings"

	"price_crew/models"
)

// DefaultProductIDPattern matches ASIN-style ids.
const DefaultProductIDPattern = `^[A-Z0-9]{10}$`

var multiSpaceRegex = regexp.MustCompile(`\s+`)

// Validator normalizes and checks product ids before they are handed to
// worker processes as arguments.
type Validator struct {
	pattern *regexp.Regexp
}

func NewValidator(pattern string) (*Validator, error) {
	if pattern == "" {
		pattern = DefaultProductIDPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Validator{pattern: re}, nil
}

// NormalizeProductID trims whitespace and upper-cases the id.
func NormalizeProductID(id string) string {
	id = multiSpaceRegex.ReplaceAllString(strings.TrimSpace(id), "")
	return strings.ToUpper(id)
}

// Validate returns the normalized id, or a ConfigurationError when it is
// empty, looks like a flag, or does not match the configured pattern.
func (v *Validator) Validate(id string) (string, error) {
	norm := NormalizeProductID(id)
	switch {
	case norm == "":
		return "", &models.ConfigurationError{Reason: "empty product id"}
	case strings.HasPrefix(norm, "-"):
		return "", &models.ConfigurationError{Code: norm, Reason: "invalid product id"}
	case !v.pattern.MatchString(norm):
		return "", &models.ConfigurationError{Code: norm, Reason: "invalid product id"}
	}
	return norm, nil
}
