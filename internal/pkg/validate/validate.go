package validate

import (
	"regexp"
	"strings"
)

var tickerPattern = regexp.MustCompile(`^[a-z0-9]{2,20}$`)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// Ticker reports whether value looks like a lower-case gateway asset code
// such as "btc" or "usdttrc20".
func Ticker(value string) bool {
	return tickerPattern.MatchString(value)
}
