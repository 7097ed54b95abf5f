package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{name: "small", n: 42, want: "42"},
		{name: "thousands", n: 1500, want: "1,500"},
		{name: "millions", n: 2500000, want: "2,500,000"},
		{name: "negative", n: -1234, want: "-1,234"},
		{name: "zero", n: 0, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatNumber(tt.n))
		})
	}
}

func TestFormatMergeLevel(t *testing.T) {
	tests := []struct {
		name  string
		level int
		want  string
	}{
		{name: "base card", level: 0, want: ""},
		{name: "level one", level: 1, want: "★"},
		{name: "level five", level: 5, want: "★★★★★"},
		{name: "beyond stars", level: 7, want: "+7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMergeLevel(tt.level))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "hours and minutes", d: 2*time.Hour + 15*time.Minute, want: "2h 15m"},
		{name: "minutes and seconds", d: 45*time.Minute + 10*time.Second, want: "45m 10s"},
		{name: "seconds only", d: 30 * time.Second, want: "30s"},
		{name: "negative clamps", d: -time.Minute, want: "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}
