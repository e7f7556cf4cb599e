package warehouse

import (
	"context"
	"testing"
	"time"
)

func TestNewDateRowQuarters(t *testing.T) {
	cases := []struct {
		month   time.Month
		quarter int
	}{
		{time.January, 1}, {time.March, 1},
		{time.April, 2}, {time.June, 2},
		{time.July, 3}, {time.September, 3},
		{time.October, 4}, {time.December, 4},
	}
	for _, tc := range cases {
		row := NewDateRow(time.Date(2024, tc.month, 15, 13, 45, 0, 0, time.Local))
		if row.Quarter != tc.quarter {
			t.Errorf("month %s: quarter = %d, want %d", tc.month, row.Quarter, tc.quarter)
		}
		if row.Month != int(tc.month) || row.Day != 15 || row.Year != 2024 {
			t.Errorf("month %s: row = %+v", tc.month, row)
		}
	}
}

func TestNewDateRowNormalizesToUTCMidnight(t *testing.T) {
	row := NewDateRow(time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC))
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !row.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", row.Date, want)
	}
}

func TestDayKey(t *testing.T) {
	d := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	if got := DayKey(d); got != "2024-01-05" {
		t.Errorf("DayKey = %q", got)
	}
}

func TestConfigPageSize(t *testing.T) {
	if got := (Config{}).PageSize(); got != DefaultBatchSize {
		t.Errorf("default page size = %d", got)
	}
	if got := (Config{BatchSize: 250}).PageSize(); got != 250 {
		t.Errorf("configured page size = %d", got)
	}
	if got := (Config{BatchSize: -1}).PageSize(); got != DefaultBatchSize {
		t.Errorf("negative batch size must fall back to default, got %d", got)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil }

	Register("test-dup", f)
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate Register must panic")
		}
	}()
	Register("test-dup", f)
}

func TestRegisterRejectsEmptyKindAndNilFactory(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s must panic", name)
			}
		}()
		fn()
	}
	mustPanic("empty kind", func() {
		Register("", func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil })
	})
	mustPanic("nil factory", func() { Register("test-nil", nil) })
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "oracle"}); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing kind")
	}
}
