package datetime

import (
	"math"
	"testing"
	"time"
)

func TestMustParseTime(t *testing.T) {
	tests := []struct {
		name     string
		layout   string
		dateStr  string
		expected string
	}{
		{
			name:     "Valid date",
			layout:   DateLayout,
			dateStr:  "2023-03-15",
			expected: "2023-03-15",
		},
		{
			name:     "Leap day",
			layout:   DateLayout,
			dateStr:  "2024-02-29",
			expected: "2024-02-29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MustParseTime(tt.layout, tt.dateStr)
			if result.Format(tt.layout) != tt.expected {
				t.Errorf("MustParseTime() = %s, expected %s", result.Format(tt.layout), tt.expected)
			}
		})
	}
}

func TestMustParseTimePanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected MustParseTime to panic with invalid date")
		}
	}()

	MustParseTime(DateLayout, "invalid-date")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"Plain date", "2022-06-01", "2022-06-01", false},
		{"RFC 3339 timestamp", "2022-06-01T12:30:00Z", "2022-06-01", false},
		{"Month only", "2022-06", "", true},
		{"Empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && FormatDate(result) != tt.expected {
				t.Errorf("ParseDate(%q) = %s, expected %s", tt.input, FormatDate(result), tt.expected)
			}
		})
	}
}

func TestMeanTime(t *testing.T) {
	if _, ok := MeanTime(nil); ok {
		t.Errorf("MeanTime(nil) reported ok for an empty slice")
	}

	times := []time.Time{
		MustParseTime(DateLayout, "2020-01-01"),
		MustParseTime(DateLayout, "2020-01-03"),
	}
	mean, ok := MeanTime(times)
	if !ok {
		t.Fatalf("MeanTime() reported not ok")
	}
	if FormatDate(mean) != "2020-01-02" {
		t.Errorf("MeanTime() = %s, expected 2020-01-02", FormatDate(mean))
	}
}

func TestYearsBetween(t *testing.T) {
	start := MustParseTime(DateLayout, "2020-01-01")
	end := start.Add(time.Duration(365.25*2*24) * time.Hour)

	if got := YearsBetween(start, end); math.Abs(got-2) > 1e-9 {
		t.Errorf("YearsBetween() = %v, expected 2", got)
	}
	if got := YearsBetween(end, start); got >= 0 {
		t.Errorf("YearsBetween() with reversed bounds = %v, expected negative", got)
	}
}
