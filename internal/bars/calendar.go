package bars

import "time"

const day = 24 * time.Hour

// bucketStart returns the start of the period holding t. Periods of whole days
// are counted in calendar days since 1970-01-01; shorter ones in elapsed time
// since local midnight, so the last bucket of a 23 or 25 hour day is cut short.
func bucketStart(t time.Time, period time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()

	if period%day == 0 {
		n := int64(period / day)
		days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
		back := ((days % n) + n) % n
		return time.Date(y, m, d-int(back), 0, 0, 0, 0, loc)
	}

	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return midnight.Add(local.Sub(midnight) / period * period)
}

// periodEnd is the close of the bar labelled start. Labels at local midnight
// with whole-day periods advance by calendar days; everything else by period.
func periodEnd(start time.Time, period time.Duration, loc *time.Location) time.Time {
	if period%day != 0 {
		return start.Add(period)
	}
	if loc == nil {
		loc = start.Location()
	}
	local := start.In(loc)
	if h, mi, sec := local.Clock(); h != 0 || mi != 0 || sec != 0 || local.Nanosecond() != 0 {
		return start.Add(period)
	}
	y, m, d := local.Date()
	return time.Date(y, m, d+int(period/day), 0, 0, 0, 0, loc)
}
