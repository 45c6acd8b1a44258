package timestamp

import (
	"testing"
	"time"
)

func TestFromTimeRoundTrip(t *testing.T) {
	now := time.Now()
	ts := FromTime(now)

	if got := ts.ToTime().Unix(); got != now.Unix() {
		t.Errorf("ToTime().Unix() = %d, want %d", got, now.Unix())
	}
}

func TestFromNTFSTicks(t *testing.T) {
	// 1601-01-01 00:00:00 UTC exactly: zero ticks.
	ts := FromNTFSTicks(0)
	if ts.Secs != ntfsEpoch.Unix() {
		t.Errorf("Secs = %d, want %d", ts.Secs, ntfsEpoch.Unix())
	}

	// One second after the epoch is 10,000,000 ticks (100ns each).
	ts = FromNTFSTicks(10_000_000)
	want := ntfsEpoch.Add(time.Second)
	if ts.ToTime().Unix() != want.Unix() {
		t.Errorf("ToTime() = %v, want %v", ts.ToTime(), want)
	}
}

func TestCompare(t *testing.T) {
	a := Timestamp{Secs: 100, Nanos: 0}
	b := Timestamp{Secs: 100, Nanos: 500}
	c := Timestamp{Secs: 101, Nanos: 0}

	if !a.Before(b) {
		t.Error("expected a before b")
	}
	if !b.Before(c) {
		t.Error("expected b before c")
	}
	if !c.After(a) {
		t.Error("expected c after a")
	}
	if a.Compare(a) != 0 {
		t.Errorf("Compare(a, a) = %d, want 0", a.Compare(a))
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2020", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2020-06", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2020-06-15", time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"2020-06-15 13:45:30", time.Date(2020, 6, 15, 13, 45, 30, 0, time.UTC)},
		{"2020-06-15 13:45", time.Date(2020, 6, 15, 13, 45, 0, 0, time.UTC)},
	}

	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", c.in, err)
		}
		if !got.ToTime().Equal(c.want) {
			t.Errorf("Parse(%q) = %v, want %v", c.in, got.ToTime(), c.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("not-a-year"); err == nil {
		t.Error("expected an error for a non-numeric year")
	}
}

func TestDurationString(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Nanosecond, "500ns"},
		{1500 * time.Microsecond, "1.5ms"},
		{90 * time.Second, "1.5min"},
		{3 * time.Hour, "3.0h"},
		{72 * time.Hour, "3.0d"},
		{-72 * time.Hour, "-3.0d"},
	}

	for _, c := range cases {
		got := Duration(c.d).String()
		if got != c.want {
			t.Errorf("Duration(%v).String() = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestDateRangeString(t *testing.T) {
	same := Timestamp{Secs: 1000}
	r := DateRange{From: same, To: same}
	if r.String() != same.Date() {
		t.Errorf("DateRange with equal dates = %q, want %q", r.String(), same.Date())
	}

	a := FromTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	b := FromTime(time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC))
	r = DateRange{From: a, To: b}
	want := "2020-01-01 to 2020-01-03"
	if r.String() != want {
		t.Errorf("DateRange.String() = %q, want %q", r.String(), want)
	}
}
