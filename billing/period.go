package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The billing month every bill is keyed by
// =============================================================================

// periodLayout is the canonical text form of a billing period.
const periodLayout = "2006-01"

// Period is a calendar billing month. Periods of one unit form a strictly
// ordered sequence; previous balance and penalty fold over the prefix of bills
// whose period is before the current one.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a "YYYY-MM" billing period.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// MustParsePeriod panics on a malformed period. Intended for tests and constants.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether p is the zero period.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// From is the first day of the period.
func (p Period) From() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// To is the last day of the period.
func (p Period) To() time.Time {
	return p.From().AddDate(0, 1, -1)
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) Next() Period { return PeriodOf(p.From().AddDate(0, 1, 0)) }
func (p Period) Prev() Period { return PeriodOf(p.From().AddDate(0, -1, 0)) }

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// =============================================================================
// DATES
// =============================================================================

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthsOverdue counts whole months elapsed between due and asOf.
// Less than one full month past due yields 0.
func MonthsOverdue(due, asOf time.Time) int {
	due, asOf = Date(due), Date(asOf)
	if !asOf.After(due) {
		return 0
	}
	months := (asOf.Year()-due.Year())*12 + int(asOf.Month()-due.Month())
	if asOf.Day() < due.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
