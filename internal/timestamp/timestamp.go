// Package timestamp represents filesystem instants with nanosecond precision,
// independent of the host's local timezone, and converts between the three
// clock sources this project has to reconcile: the Go runtime clock, NTFS's
// 100-nanosecond ticks since 1601-01-01 UTC, and the permissive date strings
// used on the CLI's --before/--after flags.
package timestamp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// nanosPerSec is the number of nanoseconds in a second, used when converting
// NTFS's 100ns ticks to a seconds+nanos pair.
const nanosPerSec = 1_000_000_000

// ntfsEpoch is 1601-01-01 00:00:00 UTC, the zero point of NTFS timestamps.
var ntfsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// Timestamp is a signed count of seconds since the Unix epoch plus an
// unsigned count of nanoseconds since the last full second. Kept as two
// fields rather than time.Time so the on-disk encoding is stable across
// encoding/msgpack versions and independent of time.Time's monotonic reading.
type Timestamp struct {
	Secs  int64
	Nanos uint32
}

// Now returns the current instant.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time (any timezone) to a Timestamp.
func FromTime(t time.Time) Timestamp {
	u := t.UTC()
	nanos := u.Nanosecond()
	if nanos < 0 {
		nanos += nanosPerSec
	}
	return Timestamp{Secs: u.Unix(), Nanos: uint32(nanos)}
}

// ToTime converts a Timestamp back to a time.Time in UTC.
func (t Timestamp) ToTime() time.Time {
	return time.Unix(t.Secs, int64(t.Nanos)).UTC()
}

// FromNTFSTicks converts the given count of 100-nanosecond ticks since the
// NTFS epoch (1601-01-01 UTC) to a Timestamp.
func FromNTFSTicks(ticks int64) Timestamp {
	return FromTime(ntfsEpoch.Add(time.Duration(ticks) * 100))
}

// Compare returns -1, 0 or 1 as t is before, equal to, or after other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Secs < other.Secs:
		return -1
	case t.Secs > other.Secs:
		return 1
	case t.Nanos < other.Nanos:
		return -1
	case t.Nanos > other.Nanos:
		return 1
	default:
		return 0
	}
}

// Before reports whether t precedes other.
func (t Timestamp) Before(other Timestamp) bool { return t.Compare(other) < 0 }

// After reports whether t follows other.
func (t Timestamp) After(other Timestamp) bool { return t.Compare(other) > 0 }

// Sub returns the duration from other to t, possibly negative.
func (t Timestamp) Sub(other Timestamp) Duration {
	return Duration(t.ToTime().Sub(other.ToTime()))
}

// Date formats only the date portion, e.g. for grouping entries by day.
func (t Timestamp) Date() string {
	return t.ToTime().Format("2006-01-02")
}

func (t Timestamp) String() string {
	return t.ToTime().Format("2006-01-02 15:04:05.0")
}

// Parse accepts the permissive "[year]-[month]-[day] [hour]:[minute]:[second]"
// form used by --before/--after, defaulting any missing date component to 01
// and any missing time component to 00 (matching the original tool's CLI
// ergonomics, where a bare year or year-month is a useful shorthand).
func Parse(s string) (Timestamp, error) {
	parts := strings.SplitN(s, " ", 2)
	dateParts := strings.Split(parts[0], "-")

	year, err := strconv.Atoi(dateParts[0])
	if err != nil {
		return Timestamp{}, fmt.Errorf("parsing year in %q: %w", s, err)
	}
	month := fieldOrDefault(dateParts, 1, 1)
	day := fieldOrDefault(dateParts, 2, 1)

	hour, minute, second := 0, 0, 0
	if len(parts) == 2 {
		timeParts := strings.Split(parts[1], ":")
		hour = fieldOrDefault(timeParts, 0, 0)
		minute = fieldOrDefault(timeParts, 1, 0)
		second = fieldOrDefault(timeParts, 2, 0)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return FromTime(t), nil
}

// ParseLayout parses s as a UTC instant using the given time.Parse layout
// string, for vendor CSV exports with a fixed, non-permissive timestamp
// format (e.g. Autoruns' "02/01/2006 15:04" or Windows Update's
// "02/01/2006 15:04:05").
func ParseLayout(s, layout string) (Timestamp, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parsing %q as %q: %w", s, layout, err)
	}
	return FromTime(t), nil
}

// fieldOrDefault parses fields[i] as an int, or returns def if the field is
// absent or fails to parse.
func fieldOrDefault(fields []string, i, def int) int {
	if i >= len(fields) {
		return def
	}
	v, err := strconv.Atoi(fields[i])
	if err != nil {
		return def
	}
	return v
}

// Duration is a signed time span between two Timestamps, rendered in the
// largest unit that keeps the magnitude readable (the same threshold ladder
// the source tool used so operators reading a diff's "last seen" column get
// "3.2d" instead of "276480s").
type Duration time.Duration

func (d Duration) String() string {
	neg := d < 0
	abs := d
	if neg {
		abs = -abs
	}
	sign := ""
	if neg {
		sign = "-"
	}

	td := time.Duration(abs)
	days := td.Hours() / 24

	switch {
	case days >= 365:
		return fmt.Sprintf("%s%.1fy", sign, days/365.25)
	case days >= 7:
		return fmt.Sprintf("%s%.1fw", sign, days/7)
	case td.Hours() >= 48:
		return fmt.Sprintf("%s%.1fd", sign, days)
	case td.Hours() >= 1:
		return fmt.Sprintf("%s%.1fh", sign, td.Hours())
	case td.Minutes() >= 1:
		return fmt.Sprintf("%s%.1fmin", sign, td.Minutes())
	case td.Seconds() >= 1:
		return fmt.Sprintf("%s%.1fs", sign, td.Seconds())
	case td.Milliseconds() >= 1:
		return fmt.Sprintf("%s%.1fms", sign, float64(td.Microseconds())/1000)
	case td.Microseconds() >= 1:
		return fmt.Sprintf("%s%.1fµs", sign, float64(td.Nanoseconds())/1000)
	default:
		return fmt.Sprintf("%s%dns", sign, td.Nanoseconds())
	}
}

// DateRange is an inclusive span of calendar dates, used to render "seen
// between X and Y" annotations that collapse to a single date when X and Y
// fall on the same day.
type DateRange struct {
	From, To Timestamp
}

func (r DateRange) String() string {
	if r.From.Date() == r.To.Date() {
		return r.From.Date()
	}
	return fmt.Sprintf("%s to %s", r.From.Date(), r.To.Date())
}
