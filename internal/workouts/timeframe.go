package workouts

import (
	"fmt"
	"strings"
	"time"
)

type Timeframe string

const (
	TimeframeHour    Timeframe = "hour"
	TimeframeDay     Timeframe = "day"
	TimeframeWeek    Timeframe = "week"
	TimeframeMonth   Timeframe = "month"
	TimeframeQuarter Timeframe = "quarter"
	TimeframeYear    Timeframe = "year"
)

func ParseTimeframe(value string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(value)))
	switch tf {
	case TimeframeHour, TimeframeDay, TimeframeWeek, TimeframeMonth, TimeframeQuarter, TimeframeYear:
		return tf, nil
	default:
		return "", fmt.Errorf("%w: [%s]", ErrUnknownTimeframe, value)
	}
}

// Window returns the [start, end) bucket that contains now. Weeks start on
// Monday, same as postgres date_trunc('week', ...).
func (tf Timeframe) Window(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	y, m, d := now.Date()

	switch tf {
	case TimeframeHour:
		start := time.Date(y, m, d, now.Hour(), 0, 0, 0, loc)
		return start, start.Add(time.Hour)
	case TimeframeWeek:
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		start := time.Date(y, m, d-daysSinceMonday, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 7)
	case TimeframeMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	case TimeframeQuarter:
		firstMonth := time.Month((int(m)-1)/3*3 + 1)
		start := time.Date(y, firstMonth, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 3, 0)
	case TimeframeYear:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	default:
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1)
	}
}

// Predicate restricts workouts to the bucket containing now.
func (tf Timeframe) Predicate(now time.Time, loc *time.Location) Predicate {
	start, end := tf.Window(now, loc)
	return BuildPredicate(FilterCriteria{Start: &start, End: &end})
}

type Metric string

const (
	MetricDistance  Metric = ColumnDistance
	MetricDuration  Metric = ColumnDuration
	MetricHeartRate Metric = ColumnHeartRate
	MetricCalories  Metric = ColumnCalories
)

func (m Metric) Valid() bool {
	switch m {
	case MetricDistance, MetricDuration, MetricHeartRate, MetricCalories:
		return true
	default:
		return false
	}
}

// value returns the metric of w, or false when the workout has no value for it.
func (m Metric) value(w Workout) (float64, bool) {
	switch m {
	case MetricDistance:
		return w.Distance, true
	case MetricDuration:
		return float64(w.Duration), true
	case MetricHeartRate:
		if w.HeartRate == nil {
			return 0, false
		}
		return float64(*w.HeartRate), true
	case MetricCalories:
		if w.CaloriesBurned == nil {
			return 0, false
		}
		return float64(*w.CaloriesBurned), true
	default:
		return 0, false
	}
}

type Aggregation string

const (
	AggregationSum Aggregation = "SUM"
	AggregationAvg Aggregation = "AVG"
)

func (a Aggregation) Valid() bool {
	return a == AggregationSum || a == AggregationAvg
}
