// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package nufx

import (
	"fmt"
	"time"
)

// DateTime is the raw 8-byte timestamp stored in NuFX headers.
// Day and Month are 0-based; Year counts from 1900.
type DateTime struct {
	Second, Minute, Hour, Year, Day, Month, Filler, Weekday byte
}

func parseDateTime(b []byte) DateTime {
	return DateTime{b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7]}
}

// IsZero reports the all-zero "unknown" sentinel.
func (d DateTime) IsZero() bool {
	return d == DateTime{}
}

// Time converts to a calendar time, pretending the stored local time means UTC.
//
// ShrinkIt wrote some archives with minute > 59 or hour > 23 (the clock
// driver carried without normalizing), so those fields cascade upward
// instead of being rejected.
func (d DateTime) Time() (time.Time, error) {
	if d.IsZero() {
		return time.Time{}, nil
	}
	if d.Second > 59 {
		return time.Time{}, fmt.Errorf("%w: second %d", ErrRange, d.Second)
	}
	if d.Day > 30 {
		return time.Time{}, fmt.Errorf("%w: day %d", ErrRange, d.Day)
	}
	if d.Month > 11 {
		return time.Time{}, fmt.Errorf("%w: month %d", ErrRange, d.Month)
	}
	if d.Weekday > 7 {
		return time.Time{}, fmt.Errorf("%w: weekday %d", ErrRange, d.Weekday)
	}

	year := 1900 + int(d.Year)
	if year < 1940 {
		year += 100
	}

	minute, hour, day := int(d.Minute), int(d.Hour), int(d.Day)+1
	hour += minute / 60
	minute %= 60
	day += hour / 24
	hour %= 24

	return time.Date(year, time.Month(d.Month)+1, day, hour, minute, int(d.Second), 0, time.UTC), nil
}
