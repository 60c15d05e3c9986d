package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	ref := time.Date(2026, 10, 16, 10, 10, 10, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-10-16T10:10:10Z", ref, true},
		{"2026-10-16", time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), true},
		{strconv.FormatInt(ref.Unix(), 10), ref, true},
		{strconv.FormatInt(ref.UnixMilli(), 10), ref, true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2026, 10, 16, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b,"))
	assert.Nil(t, SplitList(""))
}
