package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConditionIdempotent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nm", "Near Mint"},
		{"NM", "Near Mint"},
		{"near mint", "Near Mint"},
		{"VF/NM", "Very Fine"},
		{"gd", "Good"},
		{"MINT", "Mint"},
		{"slabbed beauty", "Slabbed Beauty"},
		{"", ""},
		{"  vf  ", "Very Fine"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			once := NormalizeCondition(tt.in)
			assert.Equal(t, tt.want, once)
			assert.Equal(t, once, NormalizeCondition(once), "normalization must be idempotent")
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "Amazing Spider-Man #300", NormalizeTitle("  Amazing   Spider-Man \t #300 \n"))
	assert.Equal(t, "", NormalizeTitle("   "))
	got := NormalizeTitle("X-Men #1")
	assert.Equal(t, got, NormalizeTitle(got))
}

func TestParsePriceCents(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"$1,234.56", 123456, false},
		{"1234.5", 123450, false},
		{"USD 12", 1200, false},
		{"$0.99", 99, false},
		{"120", 12000, false},
		{"", 0, true},
		{"twelve", 0, true},
		{"$", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriceCents(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1,500", 1500, false},
		{"99.8%", 99.8, false},
		{"", 0, false},
		{"n/a", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-08-01T10:30:00Z", time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)},
		{"2026-08-01 10:30:00", time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)},
		{"2026-08-01", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}

	_, err := ParseDate("last tuesday")
	require.Error(t, err)
}
