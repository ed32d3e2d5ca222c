package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a candidate amount is not a finite
// positive number.
var ErrInvalidAmount = errors.New("amount must be a positive number")

const dateLayout = "2006-01-02"

// NormalizeAmount coerces a raw JSON value into a positive decimal amount.
// Models return amounts as numbers most of the time, but numeric strings show
// up often enough that both are accepted. No upper bound is enforced here.
func NormalizeAmount(raw any) (decimal.Decimal, error) {
	var amount decimal.Decimal

	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: non-finite value", ErrInvalidAmount)
		}
		amount = decimal.NewFromFloat(v)
	case int:
		amount = decimal.NewFromInt(int64(v))
	case int64:
		amount = decimal.NewFromInt(v)
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, v.String())
		}
		amount = parsed
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
		}
		amount = parsed
	case decimal.Decimal:
		amount = v
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, raw)
	}

	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	return amount, nil
}

// NormalizeDate parses raw as an ISO date and bounds it to a plausible recent
// window. Anything unusable collapses to today: absent raw, parse failure,
// future dates, and dates older than maxAgeDays. Models occasionally
// hallucinate the year on receipts; the window keeps those outliers from
// skewing downstream statistics.
func NormalizeDate(raw string, today civil.Date, maxAgeDays int) civil.Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return today
	}

	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return today
	}

	date := civil.DateOf(parsed)
	ageDays := today.DaysSince(date)
	if ageDays < 0 || ageDays > maxAgeDays {
		return today
	}

	return date
}
