package export

import "testing"

func TestFormatSRTTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{3661.5, "01:01:01,500"},
		{59.5, "00:00:59,500"},
		{7325.25, "02:02:05,250"},
		{-4, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatSRTTime(tt.in); got != tt.want {
			t.Errorf("FormatSRTTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatVTTTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00.000"},
		{65.25, "01:05.250"},
		{3725.5, "62:05.500"}, // minutes keep counting past the hour
	}
	for _, tt := range tests {
		if got := FormatVTTTime(tt.in); got != tt.want {
			t.Errorf("FormatVTTTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00"},
		{9.99, "00:09"},
		{125.7, "02:05"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.in); got != tt.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
