package fulfillment

import "github.com/shopspring/decimal"

// StockUnknown is reported as stock-on-hand when the inventory service could
// not be reached.
var StockUnknown = decimal.NewFromInt(-1)

var hundred = decimal.NewFromInt(100)

// Coverage classifies how much of required the available stock can satisfy
// and returns the floored percentage.
func Coverage(required, stock decimal.Decimal) (CoverageStatus, int) {
	switch {
	case !required.IsPositive():
		return CoverageFull, 100
	case !stock.IsPositive():
		return CoverageNone, 0
	case stock.GreaterThanOrEqual(required):
		return CoverageFull, 100
	}
	percent := stock.Mul(hundred).Div(required).Floor()
	return CoveragePartial, int(percent.IntPart())
}

// LineCoverage is the live coverage of one line at read time.
type LineCoverage struct {
	StockAvailable decimal.Decimal
	Status         CoverageStatus
	Percent        int
	Unknown        bool
}

// CoverLine computes coverage for a line, degrading to an unknown marker when
// stock could not be looked up.
func CoverLine(required decimal.Decimal, stock decimal.Decimal, known bool) LineCoverage {
	if !known {
		return LineCoverage{StockAvailable: StockUnknown, Status: CoverageNone, Unknown: true}
	}
	status, percent := Coverage(required, stock)
	return LineCoverage{StockAvailable: stock, Status: status, Percent: percent}
}

// CoverageSummary aggregates per-line coverage for one order.
type CoverageSummary struct {
	TotalLines     int
	FullLines      int
	PartialLines   int
	MissingLines   int
	CoveredPercent int
	StockUnknown   bool
}

// Summarize counts the coverage classes. Any unknown line makes the whole
// summary unknown with zeroed counts.
func Summarize(lines []LineCoverage) CoverageSummary {
	summary := CoverageSummary{TotalLines: len(lines)}
	for _, line := range lines {
		if line.Unknown {
			return CoverageSummary{TotalLines: len(lines), StockUnknown: true}
		}
		switch line.Status {
		case CoverageFull:
			summary.FullLines++
		case CoveragePartial:
			summary.PartialLines++
		default:
			summary.MissingLines++
		}
	}
	summary.CoveredPercent = CoveredPercent(summary.FullLines, summary.TotalLines)
	return summary
}

// CoveredPercent is round(100 * full / total); an order with no lines is fully covered.
func CoveredPercent(full, total int) int {
	if total <= 0 {
		return 100
	}
	return (200*full + total) / (2 * total)
}
