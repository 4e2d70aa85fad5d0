package escrow

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money columns are numeric(20,8): 8 fractional digits and at most 12
// integer digits. Prizes outside that range would be rounded or rejected by
// Postgres.
const prizeScale = 8

var prizeCeiling = decimal.New(1, 12)

// ParsePrize reads an event's prize column. ok is false when the prize is
// absent, unparseable, not strictly positive, finer than 8 decimal places or
// 10^12 and above.
func ParsePrize(raw *string) (decimal.Decimal, bool) {
	if raw == nil {
		return decimal.Zero, false
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	if !amount.Equal(amount.Truncate(prizeScale)) || amount.GreaterThanOrEqual(prizeCeiling) {
		return decimal.Zero, false
	}
	return amount, true
}
