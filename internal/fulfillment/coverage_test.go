package fulfillment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func qty(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCoverage(t *testing.T) {
	tests := []struct {
		name        string
		required    decimal.Decimal
		stock       decimal.Decimal
		wantStatus  CoverageStatus
		wantPercent int
	}{
		{"nothing required", qty(0), qty(0), CoverageFull, 100},
		{"nothing required with stock", qty(0), qty(7), CoverageFull, 100},
		{"negative required", qty(-3), qty(0), CoverageFull, 100},
		{"no stock", qty(10), qty(0), CoverageNone, 0},
		{"negative stock", qty(10), qty(-1), CoverageNone, 0},
		{"exact stock", qty(10), qty(10), CoverageFull, 100},
		{"surplus stock", qty(10), qty(25), CoverageFull, 100},
		{"partial stock", qty(10), qty(4), CoveragePartial, 40},
		{"partial floors", qty(3), qty(2), CoveragePartial, 66},
		{"fractional", decimal.RequireFromString("2.5"), decimal.RequireFromString("0.5"), CoveragePartial, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, percent := Coverage(tt.required, tt.stock)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantPercent, percent)
		})
	}
}

func TestCoverLineUnknownStock(t *testing.T) {
	cov := CoverLine(qty(5), qty(100), false)

	assert.True(t, cov.Unknown)
	assert.Equal(t, CoverageNone, cov.Status)
	assert.True(t, cov.StockAvailable.Equal(StockUnknown))
}

func TestSummarize(t *testing.T) {
	lines := []LineCoverage{
		CoverLine(qty(10), qty(10), true),
		CoverLine(qty(10), qty(4), true),
		CoverLine(qty(10), qty(0), true),
	}

	summary := Summarize(lines)
	assert.Equal(t, 3, summary.TotalLines)
	assert.Equal(t, 1, summary.FullLines)
	assert.Equal(t, 1, summary.PartialLines)
	assert.Equal(t, 1, summary.MissingLines)
	assert.Equal(t, 33, summary.CoveredPercent)
	assert.False(t, summary.StockUnknown)

	unknown := Summarize(append(lines, CoverLine(qty(1), qty(0), false)))
	assert.True(t, unknown.StockUnknown)
	assert.Zero(t, unknown.FullLines)
	assert.Equal(t, 4, unknown.TotalLines)
}

func TestCoveredPercentRounds(t *testing.T) {
	assert.Equal(t, 100, CoveredPercent(0, 0))
	assert.Equal(t, 67, CoveredPercent(2, 3))
	assert.Equal(t, 50, CoveredPercent(1, 2))
	assert.Equal(t, 17, CoveredPercent(1, 6))
	assert.Equal(t, 100, CoveredPercent(4, 4))
}
