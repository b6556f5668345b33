package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualisation base for daily series.
const TradingDaysPerYear = 252

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Variance returns the sample variance of values.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}

// StdDev returns the sample standard deviation of values.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// CalculateReturns converts a price series into simple daily returns.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	return returns
}

// AnnualizedVolatility scales the standard deviation of daily returns by
// the square root of the trading year.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// AnnualizedReturn compounds daily returns to an annual rate. With fewer
// than three observations the simple mean is scaled instead, matching the
// behaviour of the empyrical-style cumulative formula for short series.
func AnnualizedReturn(dailyReturns []float64) float64 {
	n := len(dailyReturns)
	if n == 0 {
		return 0
	}
	if n < 3 {
		return Mean(dailyReturns) * TradingDaysPerYear
	}
	cumulative := 1.0
	for _, r := range dailyReturns {
		cumulative *= 1 + r
	}
	if cumulative <= 0 {
		return -1
	}
	return math.Pow(cumulative, TradingDaysPerYear/float64(n)) - 1
}

// SharpeRatio returns the annualised Sharpe ratio with a zero risk-free rate.
func SharpeRatio(dailyReturns []float64) float64 {
	vol := AnnualizedVolatility(dailyReturns)
	if vol == 0 {
		return 0
	}
	return AnnualizedReturn(dailyReturns) / vol
}

// SortinoRatio penalises only downside deviation.
func SortinoRatio(dailyReturns []float64) float64 {
	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	dd := StdDev(downside) * math.Sqrt(TradingDaysPerYear)
	if dd == 0 {
		return 0
	}
	return AnnualizedReturn(dailyReturns) / dd
}

// MaxDrawdown returns the largest peak-to-trough decline of a price series
// as a negative fraction.
func MaxDrawdown(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	peak := prices[0]
	maxDD := 0.0
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			dd := p/peak - 1
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
