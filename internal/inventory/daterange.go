package inventory

import (
	"time"

	"github.com/iliyamo/travel-booking/internal/errs"
)

// DateLayout is the civil date format accepted at the HTTP boundary.
const DateLayout = "2006-01-02"

// MaxNights bounds the length of a single stay or availability query.
const MaxNights = 365

// DateRange is a half-open range of civil days [CheckIn, CheckOut).  Both
// ends are UTC midnight.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// Day truncates t to UTC midnight of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDateRange normalises both ends to civil days and validates that the
// range holds between one and MaxNights nights.
func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	const op = "inventory.NewDateRange"
	r := DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
	if !r.CheckOut.After(r.CheckIn) {
		return DateRange{}, errs.E(errs.InvalidRange, op, "checkOutDate must be after checkInDate")
	}
	if r.Nights() > MaxNights {
		return DateRange{}, errs.Errorf(errs.InvalidRange, op, "stay may not exceed %d nights", MaxNights)
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD strings into a DateRange.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	const op = "inventory.ParseDateRange"
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return DateRange{}, errs.E(errs.InvalidInput, op, "checkInDate must be YYYY-MM-DD")
	}
	out, err := time.Parse(DateLayout, checkOut)
	if err != nil {
		return DateRange{}, errs.E(errs.InvalidInput, op, "checkOutDate must be YYYY-MM-DD")
	}
	return NewDateRange(in, out)
}

// Nights returns the number of nights in the range.
func (r DateRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Days lists every night of the range, check-in first.  The checkout day
// is not included.
func (r DateRange) Days() []time.Time {
	days := make([]time.Time, 0, r.Nights())
	for d := r.CheckIn; d.Before(r.CheckOut); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Overlaps reports whether the two ranges share at least one night.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}

// Union returns the smallest range covering both.
func (r DateRange) Union(o DateRange) DateRange {
	out := r
	if o.CheckIn.Before(out.CheckIn) {
		out.CheckIn = o.CheckIn
	}
	if o.CheckOut.After(out.CheckOut) {
		out.CheckOut = o.CheckOut
	}
	return out
}
