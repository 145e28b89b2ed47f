package clock

import (
	"testing"
	"time"
)

func TestTodayTruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	fake := NewFakeClock(time.Date(2024, 3, 1, 2, 30, 0, 0, loc))

	got := Today(fake)
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	fake.Advance(24 * time.Hour)
	if got := Today(fake); !got.Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("expected advance by one day, got %s", got)
	}
}
