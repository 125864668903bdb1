package workouts

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateKeywordToday     = "today"
	dateKeywordYesterday = "yesterday"
	dateLayout           = "2006-01-02"
)

// DateRange is an inclusive-start / exclusive-end window.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// NormalizeDateRange converts the start_date / end_date query values into a
// concrete [start, end) window, with day boundaries computed in loc.
// Accepted values: empty, "today", "yesterday" or a YYYY-MM-DD date.
//
// With both values empty the window is today. With only a start date, the end
// follows the start day (start day + 1), not now.
func NormalizeDateRange(now time.Time, loc *time.Location, startDate, endDate string) (DateRange, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	startDate = strings.ToLower(strings.TrimSpace(startDate))
	endDate = strings.ToLower(strings.TrimSpace(endDate))

	if startDate == "" && endDate == "" {
		start := midnight(now)
		end := start.AddDate(0, 0, 1)
		return DateRange{Start: &start, End: &end}, nil
	}

	var dr DateRange
	if startDate != "" {
		startDay, err := resolveDay(now, loc, startDate)
		if err != nil {
			return DateRange{}, fmt.Errorf("start date: %w", err)
		}
		dr.Start = &startDay
	}

	if endDate != "" {
		endDay, err := resolveDay(now, loc, endDate)
		if err != nil {
			return DateRange{}, fmt.Errorf("end date: %w", err)
		}
		end := endDay.AddDate(0, 0, 1)
		dr.End = &end
	} else {
		// end tracks the start day, so a lone start_date is a single-day query
		end := dr.Start.AddDate(0, 0, 1)
		dr.End = &end
	}

	if dr.Start != nil && !dr.End.After(*dr.Start) {
		return DateRange{}, fmt.Errorf(
			"%w: end date [%s] before start date [%s]",
			ErrInvalidDateFormat, endDate, startDate,
		)
	}

	return dr, nil
}

// resolveDay returns local midnight of the day denoted by value.
func resolveDay(now time.Time, loc *time.Location, value string) (time.Time, error) {
	switch value {
	case dateKeywordToday:
		return midnight(now), nil
	case dateKeywordYesterday:
		return midnight(now).AddDate(0, 0, -1), nil
	}

	day, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: [%s]", ErrInvalidDateFormat, value)
	}
	return day, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
