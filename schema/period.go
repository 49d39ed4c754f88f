package schema

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var periodPattern = regexp.MustCompile(`^([-+]?[0-9]*\.?[0-9]+)\s*(us|µs|ms|s|sec|min|h|d)$`)

var (
	maxPeriodMicros = decimal.NewFromInt(math.MaxInt64 / int64(time.Microsecond))
	minPeriodMicros = decimal.NewFromInt(math.MinInt64 / int64(time.Microsecond))
)

var periodUnits = map[string]decimal.Decimal{
	"us":  decimal.NewFromInt(1),
	"µs":  decimal.NewFromInt(1),
	"ms":  decimal.NewFromInt(1_000),
	"s":   decimal.NewFromInt(1_000_000),
	"sec": decimal.NewFromInt(1_000_000),
	"min": decimal.NewFromInt(60_000_000),
	"h":   decimal.NewFromInt(3_600_000_000),
	"d":   decimal.NewFromInt(86_400_000_000),
}

// ParsePeriod parses a time period with an explicit unit, e.g. "250ms",
// "1.5s" or "2min". Bare numbers are rejected because their unit is ambiguous.
func ParsePeriod(raw string) (time.Duration, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, fmt.Errorf("expected a time period, got an empty value")
	}
	if _, err := decimal.NewFromString(text); err == nil {
		return 0, fmt.Errorf("don't know what '%s' means as it has no time unit, did you mean '%sms'?", text, text)
	}
	match := periodPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, fmt.Errorf("invalid time period %q", text)
	}
	amount, err := decimal.NewFromString(match[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time period %q: %w", text, err)
	}
	micros := amount.Mul(periodUnits[match[2]])
	if !micros.IsInteger() {
		return 0, fmt.Errorf("maximum precision is microseconds")
	}
	if micros.GreaterThan(maxPeriodMicros) || micros.LessThan(minPeriodMicros) {
		return 0, fmt.Errorf("time period %q is out of range", text)
	}
	return time.Duration(micros.IntPart()) * time.Microsecond, nil
}

// PositivePeriodMillis parses a time period that must be strictly positive,
// a whole number of milliseconds and no larger than max.
func PositivePeriodMillis(raw string, max time.Duration) (time.Duration, error) {
	period, err := ParsePeriod(raw)
	if err != nil {
		return 0, err
	}
	if period <= 0 {
		return 0, fmt.Errorf("time period must be positive, got %s", strings.TrimSpace(raw))
	}
	if period%time.Millisecond != 0 {
		return 0, fmt.Errorf("maximum precision is milliseconds")
	}
	if max > 0 && period > max {
		return 0, fmt.Errorf("time period must be at most %dms", max.Milliseconds())
	}
	return period, nil
}
