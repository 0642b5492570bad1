package costbasis

import (
	"testing"
	"time"
)

func TestDate_Normalization(t *testing.T) {
	// day overflow rolls into the next month, like time.Date.
	got := NewDate(2025, time.January, 32)
	want := NewDate(2025, time.February, 1)
	if got != want {
		t.Errorf("NewDate(2025, January, 32) = %s, want %s", got, want)
	}
}

func TestDate_Add(t *testing.T) {
	d := NewDate(2025, time.February, 27)
	if got, want := d.Add(2), NewDate(2025, time.March, 1); got != want {
		t.Errorf("Add(2) = %s, want %s", got, want)
	}
	if got, want := d.Add(-30), NewDate(2025, time.January, 28); got != want {
		t.Errorf("Add(-30) = %s, want %s", got, want)
	}
}

func TestDate_DaysUntil(t *testing.T) {
	a := NewDate(2025, time.March, 1)
	for _, tc := range []struct {
		x    Date
		want int
	}{
		{NewDate(2025, time.March, 11), 10},
		{NewDate(2025, time.February, 20), -9},
		{a, 0},
		{NewDate(2026, time.March, 1), 365},
	} {
		if got := a.DaysUntil(tc.x); got != tc.want {
			t.Errorf("%s.DaysUntil(%s) = %d, want %d", a, tc.x, got, tc.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Date
	}{
		{"2025-07-01", NewDate(2025, time.July, 1)},
		{"2025-7-1", NewDate(2025, time.July, 1)},
		{"2025-01-02T15:04:05Z", NewDate(2025, time.January, 2)},
	} {
		got, err := ParseDate(tc.in)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	if _, err := ParseDate("not-a-date"); err == nil {
		t.Errorf("ParseDate(not-a-date) = nil error, want failure")
	}
}

func TestDateOf_TruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2025, time.March, 2, 6, 30, 0, 0, loc) // 2025-03-01T21:30Z
	if got, want := DateOf(ts), NewDate(2025, time.March, 1); got != want {
		t.Errorf("DateOf(%s) = %s, want %s", ts, got, want)
	}
}

func TestDate_JSON(t *testing.T) {
	d := NewDate(2025, time.July, 1)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if got, want := string(b), `"2025-07-01"`; got != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}

	var back Date
	if err := back.UnmarshalJSON(b); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if back != d {
		t.Errorf("round trip = %s, want %s", back, d)
	}
}
