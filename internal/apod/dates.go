package apod

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DateLayout is the wire format of APOD dates.
const DateLayout = "2006-01-02"

// FirstDate is the first day APOD published.
var FirstDate = time.Date(1995, time.June, 16, 0, 0, 0, 0, time.UTC)

// SafeDate returns the date offsetDays before now, as seen in loc. APOD
// publishes on US Eastern time, so asking for "today" from a timezone that
// is already a day ahead returns a not-found.
func SafeDate(now time.Time, loc *time.Location, offsetDays int) string {
	return now.In(loc).AddDate(0, 0, -offsetDays).Format(DateLayout)
}

// ValidateDate checks an explicit user-chosen date before it is sent.
func ValidateDate(date string) error {
	err := validation.Validate(date,
		validation.Required,
		validation.Date(DateLayout).Min(FirstDate),
	)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidDate, date, err)
	}
	return nil
}
