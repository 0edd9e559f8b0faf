package intake

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type ParseErrorKind string

const (
	ParseEmpty        ParseErrorKind = "empty"
	ParseMissingPrice ParseErrorKind = "missing_price"
	ParseBadPrice     ParseErrorKind = "bad_price"
	ParseNonPositive  ParseErrorKind = "non_positive"
	ParseMissingSize  ParseErrorKind = "missing_size"
)

type ParseError struct {
	Kind ParseErrorKind
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse drop line %q: %s", e.Line, e.Kind)
}

var (
	currencySuffix = regexp.MustCompile(`(?i)\s*(€|eur)\s*$`)
	priceToken     = regexp.MustCompile(`^\d+(?:[.,]\d{1,2})?$`)
)

// ParseSizePrice reads one worker line: "<size> - <price>", "<size>: <price>"
// or "<size> <price>". The price is the last token and may use a decimal comma
// and a trailing € or eur.
func ParseSizePrice(line string) (string, decimal.Decimal, error) {
	raw := line
	line = strings.TrimSpace(line)
	if line == "" {
		return "", decimal.Zero, &ParseError{Kind: ParseEmpty, Line: raw}
	}
	line = strings.TrimSpace(currencySuffix.ReplaceAllString(line, ""))

	var size, price string
	switch {
	case strings.Contains(line, " - "):
		idx := strings.LastIndex(line, " - ")
		size, price = line[:idx], line[idx+3:]
	case strings.Contains(line, ":"):
		idx := strings.LastIndex(line, ":")
		size, price = line[:idx], line[idx+1:]
	default:
		idx := strings.LastIndexAny(line, " \t")
		if idx < 0 {
			return "", decimal.Zero, &ParseError{Kind: ParseMissingPrice, Line: raw}
		}
		size, price = line[:idx], line[idx+1:]
	}
	size = strings.Trim(size, " \t-:")
	price = strings.TrimSpace(currencySuffix.ReplaceAllString(strings.TrimSpace(price), ""))

	if price == "" || price == "-" {
		return "", decimal.Zero, &ParseError{Kind: ParseMissingPrice, Line: raw}
	}
	if strings.HasPrefix(price, "-") {
		return "", decimal.Zero, &ParseError{Kind: ParseNonPositive, Line: raw}
	}
	if !priceToken.MatchString(price) {
		return "", decimal.Zero, &ParseError{Kind: ParseBadPrice, Line: raw}
	}
	amount, err := decimal.NewFromString(strings.Replace(price, ",", ".", 1))
	if err != nil {
		return "", decimal.Zero, &ParseError{Kind: ParseBadPrice, Line: raw}
	}
	if !amount.IsPositive() {
		return "", decimal.Zero, &ParseError{Kind: ParseNonPositive, Line: raw}
	}
	if size == "" {
		return "", decimal.Zero, &ParseError{Kind: ParseMissingSize, Line: raw}
	}
	return size, amount, nil
}
