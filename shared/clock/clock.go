package clock

import (
	"time"

	"github.com/rickb777/date/v2/timespan"
)

// TimeSpan marks the wall-clock interval a unit of work occupied.
type TimeSpan = timespan.TimeSpan

func NewTimeSpan(from, to time.Time) TimeSpan {
	return timespan.BetweenTimes(from, to)
}

// SpanSince covers the interval from start to now.
func SpanSince(start time.Time) TimeSpan {
	return timespan.BetweenTimes(start, time.Now())
}
