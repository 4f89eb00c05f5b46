package booking

import (
	"errors"
	"strings"
	"time"

	"github.com/jwalitptl/drivermed-api/internal/model"
)

// Accepted date-of-birth spellings, tried in order. Day-first, as entered on UK forms.
var dobLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

var ErrDateOfBirth = errors.New("unrecognised date of birth")

// NormalizeDateOfBirth converts a free-form date of birth to YYYY-MM-DD.
func NormalizeDateOfBirth(raw string, now time.Time) (string, error) {
	value := strings.Join(strings.Fields(raw), " ")
	for _, layout := range dobLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err != nil {
			continue
		}
		if t.After(now) || t.Year() < 1900 {
			return "", ErrDateOfBirth
		}
		return t.Format(model.DateLayout), nil
	}
	return "", ErrDateOfBirth
}
