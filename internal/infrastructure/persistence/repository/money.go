package repository

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are stored as integer minor units; callers guarantee at most two decimals

func toMinor(d decimal.Decimal) (int64, error) {
	m := d.Shift(2).Round(0).BigInt()
	if !m.IsInt64() {
		return 0, fmt.Errorf("amount %s does not fit in minor units", d)
	}
	return m.Int64(), nil
}

func fromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

const dateLayout = "2006-01-02"
